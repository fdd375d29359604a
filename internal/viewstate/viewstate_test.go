package viewstate

import (
	"math"
	"math/rand"
	"testing"
)

func TestZoom_StaysInBoundsOnQuarterSteps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := New()

	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0:
			s.ZoomIn()
		case 1:
			s.ZoomOut()
		default:
			if rng.Intn(10) == 0 {
				s.ResetZoom()
			}
		}

		z := s.Zoom()
		if z < MinZoom || z > MaxZoom {
			t.Fatalf("zoom %v out of bounds after %d ops", z, i)
		}
		steps := (z - DefaultZoom) / ZoomStep
		if math.Abs(steps-math.Round(steps)) > 1e-9 {
			t.Fatalf("zoom %v is not a multiple of %v from %v", z, ZoomStep, DefaultZoom)
		}
	}
}

func TestZoom_ClampsSilently(t *testing.T) {
	s := New()
	for i := 0; i < 20; i++ {
		s.ZoomIn()
	}
	if s.Zoom() != MaxZoom {
		t.Errorf("expected %v, got %v", MaxZoom, s.Zoom())
	}
	for i := 0; i < 20; i++ {
		s.ZoomOut()
	}
	if s.Zoom() != MinZoom {
		t.Errorf("expected %v, got %v", MinZoom, s.Zoom())
	}
	s.ResetZoom()
	if s.Zoom() != DefaultZoom {
		t.Errorf("expected %v, got %v", DefaultZoom, s.Zoom())
	}
}

func TestSetActiveView_RejectsUnavailable(t *testing.T) {
	s := New()
	s.SetAvailability(Availability{AP: true})
	s.SelectBroadest()

	if s.Current() != ModeAP {
		t.Fatalf("expected ap selected, got %s", s.Current())
	}
	if s.SetActiveView(ModeBoth) {
		t.Error("both must be rejected when only AP is available")
	}
	if s.SetActiveView(ModeLat) {
		t.Error("lat must be rejected when lateral is missing")
	}
	if s.Current() != ModeAP {
		t.Errorf("state changed to %s", s.Current())
	}
}

func TestButtons_DisableUnavailableModes(t *testing.T) {
	s := New()
	s.SetAvailability(Availability{AP: true})
	s.SelectBroadest()

	want := map[Mode]Button{
		ModeBoth: {Mode: ModeBoth, Enabled: false, Active: false},
		ModeAP:   {Mode: ModeAP, Enabled: true, Active: true},
		ModeLat:  {Mode: ModeLat, Enabled: false, Active: false},
	}
	for _, b := range s.Buttons() {
		if b != want[b.Mode] {
			t.Errorf("button %s: expected %+v, got %+v", b.Mode, want[b.Mode], b)
		}
	}
}

func TestSelectBroadest(t *testing.T) {
	tests := []struct {
		avail Availability
		want  Mode
	}{
		{Availability{AP: true, Lat: true}, ModeBoth},
		{Availability{AP: true}, ModeAP},
		{Availability{Lat: true}, ModeLat},
		{Availability{}, ModeBoth},
	}
	for _, tt := range tests {
		s := New()
		s.SetAvailability(tt.avail)
		s.SelectBroadest()
		if s.Current() != tt.want {
			t.Errorf("%+v: expected %s, got %s", tt.avail, tt.want, s.Current())
		}
	}
}

func TestParseMode_LateralAlias(t *testing.T) {
	m, ok := ParseMode("lateral")
	if !ok || m != ModeLat {
		t.Errorf("expected lat, got %q %v", m, ok)
	}
	if _, ok := ParseMode("side"); ok {
		t.Error("unexpected mode accepted")
	}
}
