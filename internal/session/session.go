package session

import (
	"sync"

	"wristsight-viewer/internal/overlay"
	"wristsight-viewer/internal/viewstate"
	"wristsight-viewer/pkg/models"
)

// Session holds the analysis currently on screen together with its view state
// and overlay toggles. All methods are safe for concurrent use; readers only ever
// see a complete record.
type Session struct {
	mu      sync.RWMutex
	record  *models.AnalysisRecord
	view    viewstate.State
	toggles overlay.Toggles
}

// Snapshot is a consistent copy of the session state
type Snapshot struct {
	Record  *models.AnalysisRecord
	View    viewstate.State
	Toggles overlay.Toggles
}

// Loaded reports whether the snapshot carries a record
func (s Snapshot) Loaded() bool {
	return s.Record != nil
}

// New creates an empty session
func New() *Session {
	return &Session{
		view:    viewstate.New(),
		toggles: overlay.DefaultToggles(),
	}
}

// Load replaces the current record and selects the broadest available view
func (s *Session) Load(rec models.AnalysisRecord) {
	rec.Measurements = append([]models.Measurement(nil), rec.Measurements...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = &rec
	s.view.SetAvailability(viewstate.Availability{AP: rec.HasAP(), Lat: rec.HasLat()})
	s.view.SelectBroadest()
}

// Clear drops the record and resets view state and toggles to their defaults
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	s.view = viewstate.New()
	s.toggles = overlay.DefaultToggles()
}

// Current returns a copy of the loaded record
func (s *Session) Current() (models.AnalysisRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil {
		return models.AnalysisRecord{}, false
	}
	return *s.record, true
}

// Snapshot returns a copy of the whole state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{View: s.view, Toggles: s.toggles}
	if s.record != nil {
		rec := *s.record
		snap.Record = &rec
	}
	return snap
}

// SetActiveView selects a view mode; unavailable modes are rejected
func (s *Session) SetActiveView(m viewstate.Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.SetActiveView(m)
}

// ZoomIn steps the zoom up
func (s *Session) ZoomIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ZoomIn()
}

// ZoomOut steps the zoom down
func (s *Session) ZoomOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ZoomOut()
}

// ResetZoom restores the default zoom
func (s *Session) ResetZoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ResetZoom()
}

// SetToggle switches an overlay category
func (s *Session) SetToggle(c overlay.Category, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggles.Set(c, on)
}

// SetToggles replaces all overlay toggles at once
func (s *Session) SetToggles(t overlay.Toggles) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toggles = t
}
