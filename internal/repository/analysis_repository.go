package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wristsight-viewer/internal/model"
)

// ErrNotFound is returned when no row matches
var ErrNotFound = errors.New("record not found")

// HistoryFilter selects analyses for the history list. Zero fields are ignored.
type HistoryFilter struct {
	PatientID string
	From      time.Time
	To        time.Time
	Skip      int
	Limit     int
}

// AnalysisRepository stores analyses
type AnalysisRepository interface {
	Create(ctx context.Context, analysis *model.Analysis) error
	GetByID(ctx context.Context, id string) (*model.Analysis, error)
	List(ctx context.Context, filter HistoryFilter) ([]*model.Analysis, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]*model.Analysis, error)
	Delete(ctx context.Context, id string) error
}

type analysisRepository struct {
	db *gorm.DB
}

// NewAnalysisRepository creates a gorm-backed AnalysisRepository
func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{
		db: db,
	}
}

// Create inserts a new analysis
func (r *analysisRepository) Create(ctx context.Context, analysis *model.Analysis) error {
	if err := r.db.WithContext(ctx).Create(analysis).Error; err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

// GetByID returns the analysis or ErrNotFound
func (r *analysisRepository) GetByID(ctx context.Context, id string) (*model.Analysis, error) {
	var analysis model.Analysis
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&analysis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return &analysis, nil
}

// List returns the newest analyses first
func (r *analysisRepository) List(ctx context.Context, filter HistoryFilter) ([]*model.Analysis, error) {
	query := r.db.WithContext(ctx).Model(&model.Analysis{})
	if filter.PatientID != "" {
		query = query.Where("patient_id = ?", filter.PatientID)
	}
	if !filter.From.IsZero() {
		query = query.Where("timestamp >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("timestamp <= ?", filter.To)
	}

	var analyses []*model.Analysis
	err := query.
		Order("timestamp DESC").
		Offset(filter.Skip).
		Limit(filter.Limit).
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return analyses, nil
}

// ListByPatient returns the newest analyses of one patient
func (r *analysisRepository) ListByPatient(ctx context.Context, patientID string, limit int) ([]*model.Analysis, error) {
	var analyses []*model.Analysis
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses of patient %s: %w", patientID, err)
	}
	return analyses, nil
}

// Delete removes the analysis or returns ErrNotFound
func (r *analysisRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Analysis{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete analysis: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	return nil
}
