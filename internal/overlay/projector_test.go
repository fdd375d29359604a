package overlay

import (
	"testing"

	"wristsight-viewer/pkg/models"
)

func sampleRecord() *models.AnalysisRecord {
	rec := models.AnalysisRecord{
		ID:          "A1",
		PatientID:   "PAT001",
		APImageURL:  "/static/images/A1/ap.jpg",
		LatImageURL: "/static/images/A1/lat.jpg",
		Measurements: []models.Measurement{
			{
				View:  models.ViewAP,
				Label: "Radial Angle",
				Value: "22",
				Unit:  "°",
				Landmarks: []models.Landmark{
					{X: 10, Y: 20, Label: "RS"},
					{X: 30, Y: 40},
					{X: 130, Y: 40},
				},
				Lines:    []models.Line{{X1: 10, Y1: 20, X2: 30, Y2: 40}},
				Position: &models.Point{X: 60, Y: 55},
			},
			{View: models.ViewAP, Label: "Radial Length", Value: "11", Unit: "mm"},
			{
				View:     models.ViewLat,
				Label:    "Palmar Tilt",
				Value:    "12",
				Unit:     "°",
				Lines:    []models.Line{{X1: 1, Y1: 2, X2: 3, Y2: 4, Color: "green"}},
				Position: &models.Point{X: 50, Y: 50},
			},
		},
	}
	return &rec
}

func TestProject_FiltersByView(t *testing.T) {
	p := NewProjector()
	rec := sampleRecord()

	ap := p.Project(rec, models.ViewAP, DefaultToggles())
	if ap.Demo {
		t.Fatal("real data must not be flagged as demo")
	}
	if len(ap.Landmarks) != 2 {
		t.Fatalf("expected 2 landmarks (one out of bounds skipped), got %d", len(ap.Landmarks))
	}
	if ap.Landmarks[0].Label != "RS" || ap.Landmarks[1].Label != "L2" {
		t.Errorf("unexpected labels %q, %q", ap.Landmarks[0].Label, ap.Landmarks[1].Label)
	}
	if len(ap.Lines) != 1 || ap.Lines[0].Color != "red" {
		t.Errorf("expected one red AP line, got %+v", ap.Lines)
	}
	if len(ap.Annotations) != 1 || ap.Annotations[0].Text != "22°" {
		t.Errorf("unexpected annotations %+v", ap.Annotations)
	}

	lat := p.Project(rec, models.ViewLat, DefaultToggles())
	if len(lat.Landmarks) != 0 || len(lat.Lines) != 1 || lat.Lines[0].Color != "green" {
		t.Errorf("unexpected lateral overlay %+v", lat)
	}
}

func TestProject_ToggledOffRendersNothing(t *testing.T) {
	for _, demo := range []bool{false, true} {
		opts := []Option{}
		if demo {
			opts = append(opts, WithDemoFallback(nil))
		}
		p := NewProjector(opts...)

		for _, rec := range []*models.AnalysisRecord{sampleRecord(), nil} {
			for _, c := range []Category{CategoryLandmarks, CategoryLines, CategoryMeasurements} {
				toggles := DefaultToggles()
				toggles.Set(c, false)

				o := p.Project(rec, models.ViewAP, toggles)
				if o.Count(c) != 0 {
					t.Errorf("demo=%v record=%v: category %s toggled off but produced %d elements", demo, rec != nil, c, o.Count(c))
				}
			}
		}
	}
}

func TestProject_DemoFallback(t *testing.T) {
	p := NewProjector(WithDemoFallback(nil))

	ap := p.Project(nil, models.ViewAP, DefaultToggles())
	if !ap.Demo {
		t.Fatal("expected demo overlay without a record")
	}
	if len(ap.Landmarks) != 3 || ap.Landmarks[0] != (Marker{X: 45, Y: 50, Label: "L1"}) {
		t.Errorf("unexpected AP demo landmarks %+v", ap.Landmarks)
	}
	if len(ap.Lines) != 2 || ap.Lines[1].Color != "yellow" {
		t.Errorf("unexpected AP demo lines %+v", ap.Lines)
	}
	if len(ap.Annotations) != 1 || ap.Annotations[0].Text != "23°" {
		t.Errorf("unexpected AP demo annotations %+v", ap.Annotations)
	}

	rec := sampleRecord()
	rec.Measurements = rec.MeasurementsFor(models.ViewAP)
	lat := p.Project(rec, models.ViewLat, DefaultToggles())
	if !lat.Demo || len(lat.Landmarks) != 2 || lat.Annotations[0].Text != "18°" {
		t.Errorf("expected lateral demo overlay for a view without measurements, got %+v", lat)
	}

	// mutating a result must not leak into the shared dataset
	ap.Landmarks[0].Label = "changed"
	again := p.Project(nil, models.ViewAP, DefaultToggles())
	if again.Landmarks[0].Label != "L1" {
		t.Error("demo dataset was modified through a projected overlay")
	}
}

func TestProject_NoDemoWhenDisabled(t *testing.T) {
	p := NewProjector()
	o := p.Project(nil, models.ViewAP, DefaultToggles())
	if o.Demo || len(o.Landmarks)+len(o.Lines)+len(o.Annotations) != 0 {
		t.Errorf("expected empty overlay, got %+v", o)
	}
}

func TestParseDemoSet_Custom(t *testing.T) {
	set, err := ParseDemoSet([]byte("ap:\n  landmarks:\n    - {x: 1, y: 2, label: Z}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := NewProjector(WithDemoFallback(set))
	o := p.Project(nil, models.ViewAP, DefaultToggles())
	if len(o.Landmarks) != 1 || o.Landmarks[0].Label != "Z" {
		t.Errorf("unexpected overlay %+v", o)
	}
}
