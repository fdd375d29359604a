package viewstate

import (
	"strings"

	"wristsight-viewer/pkg/models"
)

// Mode selects which images are shown
type Mode string

const (
	ModeBoth Mode = "both"
	ModeAP   Mode = "ap"
	ModeLat  Mode = "lat"
)

// Modes lists the selector buttons in display order
var Modes = []Mode{ModeBoth, ModeAP, ModeLat}

// Zoom bounds. The zoom level is always DefaultZoom plus a whole number of ZoomStep.
const (
	MinZoom     = 0.5
	MaxZoom     = 3.0
	DefaultZoom = 1.0
	ZoomStep    = 0.25

	minZoomSteps = -2 // (MinZoom - DefaultZoom) / ZoomStep
	maxZoomSteps = 8  // (MaxZoom - DefaultZoom) / ZoomStep
)

// ParseMode accepts "both", "ap", "lat" and the "lateral" alias
func ParseMode(s string) (Mode, bool) {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeBoth)) {
		return ModeBoth, true
	}
	v, ok := models.ParseView(s)
	if !ok {
		return "", false
	}
	return ModeOf(v), true
}

// ModeOf returns the single-image mode for a view
func ModeOf(v models.View) Mode {
	if v == models.ViewLat {
		return ModeLat
	}
	return ModeAP
}

// Availability tells which images the loaded record has
type Availability struct {
	AP  bool
	Lat bool
}

// Button is the render state of one view selector button
type Button struct {
	Mode    Mode `json:"mode"`
	Enabled bool `json:"enabled"`
	Active  bool `json:"active"`
}

// State is the view selector and zoom state. The zero value is not valid, use New.
type State struct {
	current   Mode
	zoomSteps int
	avail     Availability
}

// New returns the default state: both views, zoom 1.0, nothing available
func New() State {
	return State{current: ModeBoth}
}

// Current returns the selected mode
func (s State) Current() Mode { return s.current }

// Availability returns the image availability the state was given
func (s State) Availability() Availability { return s.avail }

// Zoom returns the zoom factor
func (s State) Zoom() float64 {
	return DefaultZoom + float64(s.zoomSteps)*ZoomStep
}

// CanSelect reports whether a mode is selectable given the available images
func (s State) CanSelect(m Mode) bool {
	switch m {
	case ModeBoth:
		return s.avail.AP && s.avail.Lat
	case ModeAP:
		return s.avail.AP
	case ModeLat:
		return s.avail.Lat
	}
	return false
}

// SetAvailability updates which images exist without changing the selection
func (s *State) SetAvailability(a Availability) {
	s.avail = a
}

// SetActiveView selects a mode if it is selectable and reports whether it did
func (s *State) SetActiveView(m Mode) bool {
	if !s.CanSelect(m) {
		return false
	}
	s.current = m
	return true
}

// SelectBroadest picks both views when possible, otherwise the single available one
func (s *State) SelectBroadest() {
	switch {
	case s.avail.AP && s.avail.Lat:
		s.current = ModeBoth
	case s.avail.AP:
		s.current = ModeAP
	case s.avail.Lat:
		s.current = ModeLat
	default:
		s.current = ModeBoth
	}
}

// ZoomIn increases the zoom by one step, silently stopping at MaxZoom
func (s *State) ZoomIn() {
	if s.zoomSteps < maxZoomSteps {
		s.zoomSteps++
	}
}

// ZoomOut decreases the zoom by one step, silently stopping at MinZoom
func (s *State) ZoomOut() {
	if s.zoomSteps > minZoomSteps {
		s.zoomSteps--
	}
}

// ResetZoom returns to DefaultZoom
func (s *State) ResetZoom() {
	s.zoomSteps = 0
}

// Shows reports whether the image for v is visible in the current mode
func (s State) Shows(v models.View) bool {
	if v == models.ViewAP && !s.avail.AP || v == models.ViewLat && !s.avail.Lat {
		return false
	}
	return s.current == ModeBoth || s.current == ModeOf(v)
}

// Buttons returns the selector buttons; unavailable modes are disabled
func (s State) Buttons() []Button {
	buttons := make([]Button, 0, len(Modes))
	for _, m := range Modes {
		buttons = append(buttons, Button{
			Mode:    m,
			Enabled: s.CanSelect(m),
			Active:  s.current == m,
		})
	}
	return buttons
}
