package service

import (
	"github.com/samber/lo"

	"wristsight-viewer/pkg/models"
)

// Summaries written by the mock analyzer
const (
	SummaryBoth = "Analysis of both AP and lateral views shows normal wrist alignment with no significant abnormalities in bone structure or positioning."
	SummaryAP   = "Analysis of AP view indicates normal alignment of radius and ulna. Consider lateral view for complete evaluation of palmar tilt and dorsal shift."
	SummaryLat  = "Analysis of lateral view shows appropriate palmar tilt. Consider AP view for complete evaluation of radial angle and ulnar variance."
)

// Analyzer produces measurements for the stored images
type Analyzer interface {
	Analyze(views []models.View) (measurements []models.Measurement, summary string)
}

// MockAnalyzer returns fixed wrist measurements for the views that were uploaded.
// It stands in for the model inference service during development.
type MockAnalyzer struct{}

func pt(x, y float64) *models.Point { return &models.Point{X: x, Y: y} }

func rng(a, b float64) *models.NormalRange {
	r := models.NewNormalRange(a, b)
	return &r
}

var mockMeasurements = []models.Measurement{
	{
		View: models.ViewAP, Label: "Radial Angle", Value: "22.3", Unit: "°", NormalRange: rng(21, 25),
		Landmarks: []models.Landmark{{X: 45, Y: 50, Label: "L1"}, {X: 55, Y: 45, Label: "L3"}},
		Lines:     []models.Line{{X1: 40, Y1: 40, X2: 60, Y2: 60}},
		Position:  pt(60, 55),
	},
	{
		View: models.ViewAP, Label: "Radial Length", Value: "12.1", Unit: "mm", NormalRange: rng(10, 13),
		Landmarks: []models.Landmark{{X: 50, Y: 55, Label: "L2"}},
		Lines:     []models.Line{{X1: 45, Y1: 50, X2: 65, Y2: 50, Color: "yellow"}},
		Position:  pt(66, 48),
	},
	{View: models.ViewAP, Label: "Radial Shift", Value: "1.2", Unit: "mm", NormalRange: rng(0, 2)},
	{View: models.ViewAP, Label: "Ulnar Variance", Value: "0.5", Unit: "mm", NormalRange: rng(-1, 1)},
	{
		View: models.ViewLat, Label: "Palmar Tilt", Value: "11.2", Unit: "°", NormalRange: rng(10, 15),
		Landmarks: []models.Landmark{{X: 48, Y: 52, Label: "L4"}, {X: 53, Y: 57, Label: "L5"}},
		Lines:     []models.Line{{X1: 42, Y1: 42, X2: 62, Y2: 62}},
		Position:  pt(62, 57),
	},
	{View: models.ViewLat, Label: "Dorsal Shift", Value: "2.1", Unit: "mm", NormalRange: rng(0, 3)},
}

// Analyze returns the measurements of the given views and the matching summary
func (MockAnalyzer) Analyze(views []models.View) ([]models.Measurement, string) {
	hasAP := lo.Contains(views, models.ViewAP)
	hasLat := lo.Contains(views, models.ViewLat)

	measurements := lo.Filter(mockMeasurements, func(m models.Measurement, _ int) bool {
		return lo.Contains(views, m.View)
	})

	switch {
	case hasAP && hasLat:
		return measurements, SummaryBoth
	case hasAP:
		return measurements, SummaryAP
	case hasLat:
		return measurements, SummaryLat
	}
	return measurements, ""
}
