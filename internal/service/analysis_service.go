package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/internal/client"
	"wristsight-viewer/internal/model"
	"wristsight-viewer/internal/repository"
	"wristsight-viewer/pkg/models"
)

var (
	ErrPatientIDRequired = errors.New("patient_id is required")
	ErrNoImages          = errors.New("at least one X-ray image (AP or lateral) is required")
)

// History limits of the API
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
	DefaultPatientLimit = 100
	MaxPatientLimit     = 1000
)

// AnalysisService stores uploads, runs the analyzer and serves results
type AnalysisService struct {
	repo      repository.AnalysisRepository
	analyzer  Analyzer
	logger    *logrus.Logger
	staticDir string
	now       func() time.Time
}

// NewAnalysisService creates the service. Images are written below staticDir/images.
func NewAnalysisService(repo repository.AnalysisRepository, analyzer Analyzer, logger *logrus.Logger, staticDir string) *AnalysisService {
	return &AnalysisService{
		repo:      repo,
		analyzer:  analyzer,
		logger:    logger,
		staticDir: staticDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create saves the images and the analysis result and returns the new id
func (s *AnalysisService) Create(ctx context.Context, in CreateAnalysisInput) (string, error) {
	if in.PatientID == "" {
		return "", ErrPatientIDRequired
	}
	views := lo.Filter(models.Views, func(v models.View, _ int) bool {
		_, ok := in.Images[v]
		return ok
	})
	if len(views) == 0 {
		return "", ErrNoImages
	}

	id := uuid.New().String()
	s.logger.Infof("Creating analysis %s for patient %s (%v)", id, in.PatientID, views)

	analysis := &model.Analysis{
		ID:        id,
		PatientID: in.PatientID,
		Notes:     in.Notes,
		Status:    string(models.StatusComplete),
		UserID:    in.UserID,
		Timestamp: s.now(),
	}

	for _, v := range views {
		path, err := s.saveImage(id, v, in.Images[v].Data)
		if err != nil {
			s.cleanup(id)
			return "", err
		}
		if v == models.ViewAP {
			analysis.APImagePath = path
		} else {
			analysis.LatImagePath = path
		}
	}

	measurements, summary := s.analyzer.Analyze(views)
	analysis.Measurements = measurements
	analysis.Summary = summary

	if err := s.repo.Create(ctx, analysis); err != nil {
		s.logger.Errorf("Failed to save analysis %s: %v", id, err)
		s.cleanup(id)
		return "", fmt.Errorf("failed to save analysis: %w", err)
	}

	s.logger.Infof("Analysis %s saved with %d measurements", id, len(measurements))
	return id, nil
}

// Get returns the full analysis
func (s *AnalysisService) Get(ctx context.Context, id string) (*AnalysisDetail, error) {
	analysis, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AnalysisDetail{
		ID:           analysis.ID,
		PatientID:    analysis.PatientID,
		Timestamp:    analysis.Timestamp,
		APImageURL:   imageURL(analysis, models.ViewAP),
		LatImageURL:  imageURL(analysis, models.ViewLat),
		HasAP:        analysis.HasImage(models.ViewAP),
		HasLat:       analysis.HasImage(models.ViewLat),
		Notes:        lo.EmptyableToPtr(analysis.Notes),
		Status:       analysis.Status,
		Measurements: []models.Measurement(analysis.Measurements),
		Summary:      lo.Ternary(analysis.Summary == "", "No summary available", analysis.Summary),
	}
	if detail.Measurements == nil {
		detail.Measurements = []models.Measurement{}
	}
	return detail, nil
}

// Delete removes the analysis and its image directory
func (s *AnalysisService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cleanup(id)
	s.logger.Infof("Analysis %s deleted", id)
	return nil
}

// History lists analysis summaries, newest first
func (s *AnalysisService) History(ctx context.Context, filter repository.HistoryFilter) ([]AnalysisSummary, error) {
	analyses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return lo.Map(analyses, func(a *model.Analysis, _ int) AnalysisSummary {
		return AnalysisSummary{
			ID:        a.ID,
			PatientID: a.PatientID,
			Timestamp: a.Timestamp,
			ImageURLs: &ImageURLs{
				APImageURL:  imageURL(a, models.ViewAP),
				LatImageURL: imageURL(a, models.ViewLat),
			},
			Summary: a.Summary,
			Status:  a.Status,
		}
	}), nil
}

// PatientHistory lists one patient's analyses with a thumbnail each
func (s *AnalysisService) PatientHistory(ctx context.Context, patientID string, limit int) ([]PatientSummary, error) {
	analyses, err := s.repo.ListByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(analyses, func(a *model.Analysis, _ int) PatientSummary {
		thumb := imageURL(a, models.ViewAP)
		if thumb == nil {
			thumb = imageURL(a, models.ViewLat)
		}
		return PatientSummary{
			ID:           a.ID,
			PatientID:    a.PatientID,
			Timestamp:    a.Timestamp,
			ThumbnailURL: thumb,
			Summary:      a.Summary,
			Status:       a.Status,
		}
	}), nil
}

// ImageDir returns the directory holding the images of an analysis
func (s *AnalysisService) ImageDir(id string) string {
	return filepath.Join(s.staticDir, "images", id)
}

func (s *AnalysisService) saveImage(id string, view models.View, data []byte) (string, error) {
	dir := s.ImageDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	path := filepath.Join(dir, string(view)+".jpg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s image: %w", view, err)
	}
	s.logger.Debugf("Saved %s image of %s (%d bytes)", view, id, len(data))
	return path, nil
}

func (s *AnalysisService) cleanup(id string) {
	if err := os.RemoveAll(s.ImageDir(id)); err != nil {
		s.logger.Warnf("Failed to remove images of %s: %v", id, err)
	}
}

func imageURL(a *model.Analysis, view models.View) *string {
	if !a.HasImage(view) {
		return nil
	}
	u := client.StaticImagePath(a.ID, view)
	return &u
}
