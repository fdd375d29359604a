package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"wristsight-viewer/internal/model"
)

// MemoryAnalysisRepository keeps analyses in memory. Used when no database is configured and in tests.
type MemoryAnalysisRepository struct {
	mu    sync.RWMutex
	items map[string]model.Analysis
}

// NewMemoryAnalysisRepository creates an empty store
func NewMemoryAnalysisRepository() *MemoryAnalysisRepository {
	return &MemoryAnalysisRepository{items: make(map[string]model.Analysis)}
}

func (r *MemoryAnalysisRepository) Create(_ context.Context, analysis *model.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[analysis.ID]; ok {
		return fmt.Errorf("failed to create analysis: duplicate id %s", analysis.ID)
	}
	r.items[analysis.ID] = *analysis
	return nil
}

func (r *MemoryAnalysisRepository) GetByID(_ context.Context, id string) (*model.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	return &a, nil
}

func (r *MemoryAnalysisRepository) List(_ context.Context, filter HistoryFilter) ([]*model.Analysis, error) {
	matches := r.sorted(func(a model.Analysis) bool {
		return (filter.PatientID == "" || a.PatientID == filter.PatientID) &&
			(filter.From.IsZero() || !a.Timestamp.Before(filter.From)) &&
			(filter.To.IsZero() || !a.Timestamp.After(filter.To))
	})
	if filter.Skip >= len(matches) {
		return []*model.Analysis{}, nil
	}
	matches = matches[filter.Skip:]
	if filter.Limit > 0 && filter.Limit < len(matches) {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

func (r *MemoryAnalysisRepository) ListByPatient(ctx context.Context, patientID string, limit int) ([]*model.Analysis, error) {
	return r.List(ctx, HistoryFilter{PatientID: patientID, Limit: limit})
}

func (r *MemoryAnalysisRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	delete(r.items, id)
	return nil
}

// sorted returns copies of the matching analyses, newest first
func (r *MemoryAnalysisRepository) sorted(keep func(model.Analysis) bool) []*model.Analysis {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Analysis, 0, len(r.items))
	for _, a := range r.items {
		if keep(a) {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// MemoryUserRepository keeps accounts in memory
type MemoryUserRepository struct {
	mu     sync.RWMutex
	users  []model.User
	nextID uint
}

// NewMemoryUserRepository creates an empty store
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{nextID: 1}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = r.nextID
	r.nextID++
	r.users = append(r.users, *user)
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id uint) (*model.User, error) {
	return r.find(fmt.Sprintf("user %d", id), func(u model.User) bool { return u.ID == id })
}

func (r *MemoryUserRepository) GetByLogin(_ context.Context, login string) (*model.User, error) {
	return r.find("user "+login, func(u model.User) bool { return u.Username == login || u.Email == login })
}

func (r *MemoryUserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, err := r.find("", func(u model.User) bool { return u.Email == email })
	return err == nil, nil
}

func (r *MemoryUserRepository) ExistsByUsername(_ context.Context, username string) (bool, error) {
	_, err := r.find("", func(u model.User) bool { return u.Username == username })
	return err == nil, nil
}

func (r *MemoryUserRepository) find(what string, match func(model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := lo.Find(r.users, match)
	if !ok {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return &user, nil
}
