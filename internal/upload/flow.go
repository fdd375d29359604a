package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/pkg/models"
)

// Validation errors. They are raised before anything is sent to the backend.
var (
	ErrPatientIDRequired = errors.New("patient ID is required")
	ErrImageRequired     = errors.New("at least one image (AP or lateral) is required")
	ErrNotAnImage        = errors.New("please select an image file")
	ErrImageTooLarge     = errors.New("image file is too large")
	ErrUnknownSlot       = errors.New("unknown image slot")
	ErrSubmitInProgress  = errors.New("a submission is already in progress")
)

// DefaultMaxImageSize bounds a single selected file
const DefaultMaxImageSize = 20 << 20

// State is the position of the form in the upload state machine
type State string

const (
	StateEmpty            State = "empty"
	StatePatientIDEntered State = "patientIdEntered"
	StateImageSelected    State = "imageSelected"
	StateSubmitting       State = "submitting"
	StateSuccess          State = "success"
	StateError            State = "error"
)

// Gateway is the part of the API client the upload needs
type Gateway interface {
	CreateAnalysis(ctx context.Context, request models.CreateAnalysisRequest) (string, error)
	GetAnalysis(ctx context.Context, id string) (*models.AnalysisRecord, error)
}

// Loader receives the analysis produced by a successful submission
type Loader interface {
	Load(rec models.AnalysisRecord)
}

// Image is a file selected for one slot
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
	Preview     string // data: URL
}

// Preview is the render model of a selected image
type Preview struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	DataURL     string `json:"data_url"`
}

// Form is a copy of the flow state for rendering
type Form struct {
	PatientID      string                  `json:"patient_id"`
	Notes          string                  `json:"notes"`
	Images         map[models.View]Preview `json:"images"`
	State          State                   `json:"state"`
	CanSubmit      bool                    `json:"can_submit"`
	Error          string                  `json:"error,omitempty"`
	LastAnalysisID string                  `json:"last_analysis_id,omitempty"`
}

// Flow captures a patient ID, optional notes and up to two images and submits them as one analysis
type Flow struct {
	mu      sync.Mutex
	gateway Gateway
	loader  Loader
	logger  *logrus.Logger
	maxSize int

	patientID  string
	notes      string
	images     map[models.View]*Image
	submitting bool
	outcome    State // StateSuccess or StateError after a submit, cleared by the next edit
	lastErr    error
	lastID     string
}

// Option configures a Flow
type Option func(*Flow)

// WithMaxImageSize overrides DefaultMaxImageSize
func WithMaxImageSize(n int) Option {
	return func(f *Flow) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// NewFlow creates an empty upload form
func NewFlow(gateway Gateway, loader Loader, logger *logrus.Logger, opts ...Option) *Flow {
	f := &Flow{
		gateway: gateway,
		loader:  loader,
		logger:  logger,
		maxSize: DefaultMaxImageSize,
		images:  make(map[models.View]*Image),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetPatientID sets the patient ID; surrounding whitespace is ignored
func (f *Flow) SetPatientID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patientID = strings.TrimSpace(id)
	f.touch()
}

// SetNotes sets the optional notes
func (f *Flow) SetNotes(notes string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = notes
	f.touch()
}

// SelectImage puts a file into a slot, replacing whatever was there.
// The content is sniffed; anything that is not an image is rejected and leaves the slot untouched.
func (f *Flow) SelectImage(slot models.View, filename string, data []byte) error {
	if slot != models.ViewAP && slot != models.ViewLat {
		return ErrUnknownSlot
	}
	if len(data) == 0 {
		return ErrNotAnImage
	}
	if len(data) > f.maxSize {
		return ErrImageTooLarge
	}

	mime := mimetype.Detect(data)
	contentType := mime.String()
	if !strings.HasPrefix(contentType, "image/") {
		f.logger.Warnf("Rejected %s for %s slot: detected %s", filename, slot, contentType)
		return ErrNotAnImage
	}
	// drop parameters such as charset
	contentType = strings.SplitN(contentType, ";", 2)[0]

	img := &Image{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
		Preview:     "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[slot] = img
	f.touch()
	return nil
}

// RemoveImage clears a slot
func (f *Flow) RemoveImage(slot models.View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, slot)
	f.touch()
}

// CanSubmit reports whether the form has a patient ID and at least one image
func (f *Flow) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validate() == nil && !f.submitting
}

// State returns the current state of the form
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state()
}

// Form returns a copy of the form for rendering
func (f *Flow) Form() Form {
	f.mu.Lock()
	defer f.mu.Unlock()

	form := Form{
		PatientID:      f.patientID,
		Notes:          f.notes,
		Images:         make(map[models.View]Preview, len(f.images)),
		State:          f.state(),
		CanSubmit:      f.validate() == nil && !f.submitting,
		LastAnalysisID: f.lastID,
	}
	for slot, img := range f.images {
		form.Images[slot] = Preview{
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Size:        len(img.Data),
			DataURL:     img.Preview,
		}
	}
	if f.outcome == StateError && f.lastErr != nil {
		form.Error = f.lastErr.Error()
	}
	return form
}

// Submit sends the form to the backend, fetches the created analysis and loads it.
// On success the form is reset and the new analysis id is returned. On failure the
// form is left as it was so the user can retry.
func (f *Flow) Submit(ctx context.Context) (string, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return "", ErrSubmitInProgress
	}
	if err := f.validate(); err != nil {
		f.outcome = StateError
		f.lastErr = err
		f.mu.Unlock()
		return "", err
	}
	request := f.request()
	f.submitting = true
	f.outcome = ""
	f.lastErr = nil
	f.mu.Unlock()

	rec, err := f.send(ctx, request)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if err != nil {
		f.logger.Errorf("Upload for patient %s failed: %v", request.PatientID, err)
		f.outcome = StateError
		f.lastErr = err
		return "", err
	}

	if f.loader != nil {
		f.loader.Load(*rec)
	}
	f.reset()
	f.outcome = StateSuccess
	f.lastID = rec.ID
	f.logger.Infof("Analysis %s loaded for patient %s", rec.ID, rec.PatientID)
	return rec.ID, nil
}

// Reset clears the form
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
	f.outcome = ""
	f.lastErr = nil
}

// send is the two-step protocol: creation returns only an id, the detail call returns the record
func (f *Flow) send(ctx context.Context, request models.CreateAnalysisRequest) (*models.AnalysisRecord, error) {
	id, err := f.gateway.CreateAnalysis(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}
	rec, err := f.gateway.GetAnalysis(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch analysis %s: %w", id, err)
	}
	return rec, nil
}

func (f *Flow) request() models.CreateAnalysisRequest {
	request := models.CreateAnalysisRequest{
		PatientID: f.patientID,
		Notes:     strings.TrimSpace(f.notes),
	}
	if img, ok := f.images[models.ViewAP]; ok {
		request.APImage = img.file()
	}
	if img, ok := f.images[models.ViewLat]; ok {
		request.LatImage = img.file()
	}
	return request
}

func (img *Image) file() *models.ImageFile {
	return &models.ImageFile{Filename: img.Filename, ContentType: img.ContentType, Data: img.Data}
}

func (f *Flow) validate() error {
	if f.patientID == "" {
		return ErrPatientIDRequired
	}
	if len(f.selected()) == 0 {
		return ErrImageRequired
	}
	return nil
}

func (f *Flow) selected() []models.View {
	return lo.Filter(models.Views, func(v models.View, _ int) bool {
		_, ok := f.images[v]
		return ok
	})
}

func (f *Flow) state() State {
	switch {
	case f.submitting:
		return StateSubmitting
	case f.outcome != "":
		return f.outcome
	case len(f.images) > 0:
		return StateImageSelected
	case f.patientID != "":
		return StatePatientIDEntered
	}
	return StateEmpty
}

func (f *Flow) touch() {
	if f.outcome != "" {
		f.outcome = ""
		f.lastErr = nil
	}
}

func (f *Flow) reset() {
	f.patientID = ""
	f.notes = ""
	f.images = make(map[models.View]*Image)
}
