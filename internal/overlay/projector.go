package overlay

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"wristsight-viewer/pkg/models"
)

//go:embed demo.yaml
var defaultDemoYAML []byte

// Category is one independently toggled overlay layer
type Category string

const (
	CategoryLandmarks    Category = "landmarks"
	CategoryLines        Category = "lines"
	CategoryMeasurements Category = "measurements"
)

// Toggles controls which categories are produced at all
type Toggles struct {
	Landmarks    bool `json:"landmarks"`
	Lines        bool `json:"lines"`
	Measurements bool `json:"measurements"`
}

// DefaultToggles shows every category
func DefaultToggles() Toggles {
	return Toggles{Landmarks: true, Lines: true, Measurements: true}
}

// Set switches one category and reports whether the category is known
func (t *Toggles) Set(c Category, on bool) bool {
	switch c {
	case CategoryLandmarks:
		t.Landmarks = on
	case CategoryLines:
		t.Lines = on
	case CategoryMeasurements:
		t.Measurements = on
	default:
		return false
	}
	return true
}

// Marker is a landmark dot positioned in percent of the image box
type Marker struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Label string  `json:"label" yaml:"label"`
}

// Segment is a reference line in percent of the image box
type Segment struct {
	X1    float64 `json:"x1" yaml:"x1"`
	Y1    float64 `json:"y1" yaml:"y1"`
	X2    float64 `json:"x2" yaml:"x2"`
	Y2    float64 `json:"y2" yaml:"y2"`
	Color string  `json:"color" yaml:"color"`
}

// Annotation is a measurement value drawn at a position
type Annotation struct {
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Text string  `json:"text" yaml:"text"`
}

// Overlay holds the render primitives for one view
type Overlay struct {
	View        models.View  `json:"view"`
	Landmarks   []Marker     `json:"landmarks"`
	Lines       []Segment    `json:"lines"`
	Annotations []Annotation `json:"annotations"`
	Demo        bool         `json:"demo"`
}

// Count returns the number of primitives in a category
func (o Overlay) Count(c Category) int {
	switch c {
	case CategoryLandmarks:
		return len(o.Landmarks)
	case CategoryLines:
		return len(o.Lines)
	case CategoryMeasurements:
		return len(o.Annotations)
	}
	return 0
}

// DemoSet is the placeholder dataset, one overlay per view
type DemoSet map[models.View]Overlay

type demoFile struct {
	AP  demoView `yaml:"ap"`
	Lat demoView `yaml:"lat"`
}

type demoView struct {
	Landmarks   []Marker     `yaml:"landmarks"`
	Lines       []Segment    `yaml:"lines"`
	Annotations []Annotation `yaml:"annotations"`
}

// ParseDemoSet reads a demo dataset from YAML
func ParseDemoSet(data []byte) (DemoSet, error) {
	var f demoFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse demo overlay: %w", err)
	}
	return DemoSet{
		models.ViewAP:  {View: models.ViewAP, Landmarks: f.AP.Landmarks, Lines: f.AP.Lines, Annotations: f.AP.Annotations, Demo: true},
		models.ViewLat: {View: models.ViewLat, Landmarks: f.Lat.Landmarks, Lines: f.Lat.Lines, Annotations: f.Lat.Annotations, Demo: true},
	}, nil
}

// LoadDemoSet reads a demo dataset from a YAML file
func LoadDemoSet(path string) (DemoSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read demo overlay file: %w", err)
	}
	return ParseDemoSet(data)
}

// DefaultDemoSet returns the embedded placeholder dataset
func DefaultDemoSet() DemoSet {
	set, err := ParseDemoSet(defaultDemoYAML)
	if err != nil {
		panic(err)
	}
	return set
}

// Projector maps analysis measurements onto overlay primitives
type Projector struct {
	demo   DemoSet
	logger *logrus.Logger
}

// Option configures a Projector
type Option func(*Projector)

// WithDemoFallback draws the given dataset for views that have no measurements.
// Passing nil uses the embedded dataset.
func WithDemoFallback(set DemoSet) Option {
	return func(p *Projector) {
		if set == nil {
			set = DefaultDemoSet()
		}
		p.demo = set
	}
}

// WithLogger sets the logger used to report skipped entries
func WithLogger(logger *logrus.Logger) Option {
	return func(p *Projector) {
		p.logger = logger
	}
}

// NewProjector creates a projector. Without WithDemoFallback empty views stay empty.
func NewProjector(opts ...Option) *Projector {
	p := &Projector{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DemoEnabled reports whether the placeholder dataset is configured
func (p *Projector) DemoEnabled() bool {
	return p.demo != nil
}

// Project builds the overlay for one view. rec may be nil.
// Categories switched off in t are left nil.
func (p *Projector) Project(rec *models.AnalysisRecord, view models.View, t Toggles) Overlay {
	var measurements []models.Measurement
	if rec != nil {
		measurements = rec.MeasurementsFor(view)
	}

	if len(measurements) == 0 && p.demo != nil {
		return applyToggles(p.demoFor(view), t)
	}

	out := Overlay{View: view}
	if t.Landmarks {
		out.Landmarks = p.landmarks(view, measurements)
	}
	if t.Lines {
		out.Lines = p.lines(view, measurements)
	}
	if t.Measurements {
		out.Annotations = p.annotations(view, measurements)
	}
	return out
}

func (p *Projector) landmarks(view models.View, measurements []models.Measurement) []Marker {
	markers := []Marker{}
	n := 0
	for _, m := range measurements {
		for _, lm := range m.Landmarks {
			n++
			if !inBounds(lm.X, lm.Y) {
				p.logger.Debugf("skipping landmark %d of %s view: out of image bounds (%.1f, %.1f)", n, view, lm.X, lm.Y)
				continue
			}
			label := lm.Label
			if label == "" {
				label = fmt.Sprintf("L%d", n)
			}
			markers = append(markers, Marker{X: lm.X, Y: lm.Y, Label: label})
		}
	}
	return markers
}

func (p *Projector) lines(view models.View, measurements []models.Measurement) []Segment {
	segments := []Segment{}
	for _, m := range measurements {
		for _, ln := range m.Lines {
			if !inBounds(ln.X1, ln.Y1) || !inBounds(ln.X2, ln.Y2) {
				p.logger.Debugf("skipping line of %q on %s view: out of image bounds", m.Label, view)
				continue
			}
			color := ln.Color
			if color == "" {
				color = defaultLineColor(view)
			}
			segments = append(segments, Segment{X1: ln.X1, Y1: ln.Y1, X2: ln.X2, Y2: ln.Y2, Color: color})
		}
	}
	return segments
}

func (p *Projector) annotations(view models.View, measurements []models.Measurement) []Annotation {
	annotations := []Annotation{}
	for _, m := range measurements {
		if m.Position == nil {
			continue
		}
		if !inBounds(m.Position.X, m.Position.Y) {
			p.logger.Debugf("skipping annotation of %q on %s view: out of image bounds", m.Label, view)
			continue
		}
		annotations = append(annotations, Annotation{X: m.Position.X, Y: m.Position.Y, Text: m.DisplayValue("")})
	}
	return annotations
}

func (p *Projector) demoFor(view models.View) Overlay {
	o, ok := p.demo[view]
	if !ok {
		return Overlay{View: view, Demo: true}
	}
	// copy so that callers can't alter the shared dataset
	o.Landmarks = append([]Marker(nil), o.Landmarks...)
	o.Lines = append([]Segment(nil), o.Lines...)
	o.Annotations = append([]Annotation(nil), o.Annotations...)
	o.View = view
	o.Demo = true
	return o
}

func applyToggles(o Overlay, t Toggles) Overlay {
	if !t.Landmarks {
		o.Landmarks = nil
	}
	if !t.Lines {
		o.Lines = nil
	}
	if !t.Measurements {
		o.Annotations = nil
	}
	return o
}

func defaultLineColor(view models.View) string {
	if view == models.ViewLat {
		return "blue"
	}
	return "red"
}

func inBounds(x, y float64) bool {
	return x >= 0 && x <= 100 && y >= 0 && y <= 100
}
