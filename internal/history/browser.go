package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/pkg/models"
)

// ErrNoRecord is returned when a selection names an empty id
var ErrNoRecord = errors.New("no analysis selected")

// Gateway is the part of the API client the history browser needs
type Gateway interface {
	GetHistory(ctx context.Context, query models.HistoryQuery) ([]models.AnalysisRecord, error)
	GetPatientHistory(ctx context.Context, patientID string, limit int) ([]models.AnalysisRecord, error)
	GetAnalysis(ctx context.Context, id string) (*models.AnalysisRecord, error)
	DeleteAnalysis(ctx context.Context, id string) error
}

// Loader receives the record promoted from a history row
type Loader interface {
	Load(rec models.AnalysisRecord)
}

// Listing is a copy of the browser state for rendering
type Listing struct {
	Filters Filters `json:"filters"`
	Quick   string  `json:"quick_search"`
	Page    Page    `json:"page"`
	Fetched bool    `json:"fetched"`
	Loading bool    `json:"loading"`
	Error   string  `json:"error,omitempty"`
}

// Browser keeps the fetched history list together with the filter, quick search and page state.
// The list is only ever replaced as a whole; a failed fetch keeps the previous one.
type Browser struct {
	mu         sync.Mutex
	gateway    Gateway
	loader     Loader
	logger     *logrus.Logger
	batch      int
	maxRecords int

	records  []models.AnalysisRecord
	filters  Filters
	criteria Criteria
	page     int
	fetched  bool
	loading  int
	lastErr  error
}

// Option configures a Browser
type Option func(*Browser)

// WithBatchSize sets the limit sent with each history request (the backend caps it at 100)
func WithBatchSize(n int) Option {
	return func(b *Browser) {
		if n > 0 {
			b.batch = n
		}
	}
}

// WithMaxRecords bounds how many records a fetch collects across batches
func WithMaxRecords(n int) Option {
	return func(b *Browser) {
		if n > 0 {
			b.maxRecords = n
		}
	}
}

// NewBrowser creates an empty history browser
func NewBrowser(gateway Gateway, loader Loader, logger *logrus.Logger, opts ...Option) *Browser {
	b := &Browser{
		gateway:    gateway,
		loader:     loader,
		logger:     logger,
		batch:      100,
		maxRecords: 1000,
		page:       1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fetch reloads the list using the current filters server-side
func (b *Browser) Fetch(ctx context.Context) error {
	b.mu.Lock()
	filters := b.filters
	b.loading++
	b.mu.Unlock()

	records, err := b.fetchAll(ctx, filters)
	return b.finish(records, err)
}

// fetchAll pages through /history until a short batch or maxRecords
func (b *Browser) fetchAll(ctx context.Context, filters Filters) ([]models.AnalysisRecord, error) {
	var all []models.AnalysisRecord
	for {
		query := filters.Query(b.batch)
		query.Skip = len(all)
		batch, err := b.gateway.GetHistory(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < b.batch || len(all) >= b.maxRecords {
			break
		}
	}
	if len(all) > b.maxRecords {
		all = all[:b.maxRecords]
	}
	b.logger.Debugf("Fetched %d history records", len(all))
	return all, nil
}

func (b *Browser) finish(records []models.AnalysisRecord, err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loading--
	if err != nil {
		b.logger.Errorf("History fetch failed: %v", err)
		b.lastErr = err
		return err
	}
	b.records = records
	b.fetched = true
	b.lastErr = nil
	b.page = 1
	return nil
}

// SetFilters validates and applies the form filters without fetching
func (b *Browser) SetFilters(f Filters) error {
	f, c, err := ParseFilters(f)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	c.Quick = b.criteria.Quick
	b.filters = f
	b.criteria = c
	b.page = 1
	return nil
}

// Search applies the filters and fetches
func (b *Browser) Search(ctx context.Context, f Filters) error {
	if err := b.SetFilters(f); err != nil {
		return err
	}
	return b.Fetch(ctx)
}

// Reset clears filters and quick search and fetches the unfiltered list
func (b *Browser) Reset(ctx context.Context) error {
	b.mu.Lock()
	b.filters = Filters{}
	b.criteria = Criteria{}
	b.page = 1
	b.mu.Unlock()
	return b.Fetch(ctx)
}

// SetQuickSearch sets the free-text search applied on top of the filters
func (b *Browser) SetQuickSearch(q string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.criteria.Quick = strings.TrimSpace(q)
	b.page = 1
}

// NextPage moves forward one page; it reports false on the last page
func (b *Browser) NextPage() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.current()
	if !p.HasNext {
		return false
	}
	b.page = p.Number + 1
	return true
}

// PrevPage moves back one page; it reports false on the first page
func (b *Browser) PrevPage() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.current()
	if !p.HasPrev {
		return false
	}
	b.page = p.Number - 1
	return true
}

// GoToPage jumps to a page, clamped to the available range
func (b *Browser) GoToPage(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.page = n
	b.page = b.current().Number
}

// Page returns the current page of filtered records
func (b *Browser) Page() Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Listing returns everything needed to render the history screen
func (b *Browser) Listing() Listing {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := Listing{
		Filters: b.filters,
		Quick:   b.criteria.Quick,
		Page:    b.current(),
		Fetched: b.fetched,
		Loading: b.loading > 0,
	}
	if b.lastErr != nil {
		l.Error = b.lastErr.Error()
	}
	return l
}

func (b *Browser) current() Page {
	return Paginate(Filter(b.records, b.criteria), b.page, PerPage)
}

// Select promotes a history row into the analysis session. Rows that are summaries
// without measurement detail, or that are not in the list, are fetched by id first.
func (b *Browser) Select(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	if id == "" {
		return nil, ErrNoRecord
	}

	b.mu.Lock()
	rec, found := lo.Find(b.records, func(r models.AnalysisRecord) bool { return r.ID == id })
	b.mu.Unlock()

	if !found || rec.NeedsDetail() {
		full, err := b.gateway.GetAnalysis(ctx, id)
		if err != nil {
			b.logger.Errorf("Failed to load analysis %s: %v", id, err)
			return nil, fmt.Errorf("failed to load analysis %s: %w", id, err)
		}
		rec = *full
	}

	if b.loader != nil {
		b.loader.Load(rec)
	}
	return &rec, nil
}

// Delete removes an analysis on the backend and drops it from the list
func (b *Browser) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoRecord
	}
	if err := b.gateway.DeleteAnalysis(ctx, id); err != nil {
		return fmt.Errorf("failed to delete analysis %s: %w", id, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = lo.Reject(b.records, func(r models.AnalysisRecord, _ int) bool { return r.ID == id })
	b.page = b.current().Number
	return nil
}

// FetchPatient replaces the list with the history of one patient
func (b *Browser) FetchPatient(ctx context.Context, patientID string) error {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return errors.New("patient ID is required")
	}

	b.mu.Lock()
	b.filters = Filters{PatientID: patientID}
	b.criteria = Criteria{PatientID: patientID, Quick: b.criteria.Quick}
	b.page = 1
	b.loading++
	b.mu.Unlock()

	records, err := b.gateway.GetPatientHistory(ctx, patientID, b.batch)
	if err != nil {
		err = fmt.Errorf("failed to fetch history of patient %s: %w", patientID, err)
	}
	return b.finish(records, err)
}
