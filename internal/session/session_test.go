package session

import (
	"sync"
	"testing"

	"wristsight-viewer/internal/overlay"
	"wristsight-viewer/internal/viewstate"
	"wristsight-viewer/pkg/models"
)

func TestLoad_SelectsBroadestView(t *testing.T) {
	s := New()
	s.Load(models.AnalysisRecord{ID: "A1", APImageURL: "/a.jpg", LatImageURL: "/l.jpg"})
	if got := s.Snapshot().View.Current(); got != viewstate.ModeBoth {
		t.Errorf("expected both, got %s", got)
	}

	s.Load(models.AnalysisRecord{ID: "A2", LatImageURL: "/l.jpg"})
	snap := s.Snapshot()
	if snap.View.Current() != viewstate.ModeLat {
		t.Errorf("expected lat, got %s", snap.View.Current())
	}
	if snap.Record.ID != "A2" {
		t.Errorf("expected A2 loaded, got %s", snap.Record.ID)
	}
}

func TestSetActiveView_BothRejectedForSingleImage(t *testing.T) {
	s := New()
	s.Load(models.AnalysisRecord{ID: "A1", APImageURL: "/a.jpg"})

	if s.SetActiveView(viewstate.ModeBoth) {
		t.Error("both must be rejected with only an AP image")
	}
	if got := s.Snapshot().View.Current(); got != viewstate.ModeAP {
		t.Errorf("view changed to %s", got)
	}
}

func TestClear_ResetsEverything(t *testing.T) {
	s := New()
	s.Load(models.AnalysisRecord{ID: "A1", APImageURL: "/a.jpg"})
	s.ZoomIn()
	s.SetToggle(overlay.CategoryLines, false)

	s.Clear()
	snap := s.Snapshot()
	if snap.Loaded() {
		t.Error("expected no record after clear")
	}
	if snap.View.Zoom() != viewstate.DefaultZoom || snap.View.Current() != viewstate.ModeBoth {
		t.Errorf("view state not reset: %+v", snap.View)
	}
	if snap.Toggles != overlay.DefaultToggles() {
		t.Errorf("toggles not reset: %+v", snap.Toggles)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New()
	s.Load(models.AnalysisRecord{ID: "A1", Measurements: []models.Measurement{{Label: "x"}}})

	snap := s.Snapshot()
	snap.Record.ID = "changed"
	if cur, _ := s.Current(); cur.ID != "A1" {
		t.Error("snapshot shares memory with the session")
	}
}

func TestLoad_ConcurrentReadersSeeWholeRecords(t *testing.T) {
	s := New()
	records := []models.AnalysisRecord{
		{ID: "AP", APImageURL: "/a.jpg"},
		{ID: "LAT", LatImageURL: "/l.jpg"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Load(records[(i+j)%2])
			}
		}(i)
	}

	for j := 0; j < 500; j++ {
		snap := s.Snapshot()
		if snap.Record == nil {
			continue
		}
		if snap.Record.ID == "AP" && !snap.Record.HasAP() || snap.Record.ID == "LAT" && !snap.Record.HasLat() {
			t.Fatalf("torn record %+v", snap.Record)
		}
	}
	wg.Wait()
}
