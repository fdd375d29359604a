package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// View identifies one of the two X-ray projections
type View string

const (
	ViewAP  View = "ap"  // anteroposterior projection
	ViewLat View = "lat" // lateral projection
)

// Views lists the image slots in display order
var Views = []View{ViewAP, ViewLat}

// ParseView converts user or backend input into a View. "lateral" is accepted as an alias of "lat".
func ParseView(s string) (View, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ap":
		return ViewAP, true
	case "lat", "lateral":
		return ViewLat, true
	}
	return "", false
}

// Status is the processing state of an analysis
type Status string

const (
	StatusPending  Status = "Pending"
	StatusComplete Status = "Complete"
	StatusError    Status = "Error"
)

// ParseStatus maps the backend's free-form status strings onto Status.
// Unknown values are treated as pending.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "complete", "completed", "finalized", "reviewed", "done":
		return StatusComplete
	case "error", "failed":
		return StatusError
	default:
		return StatusPending
	}
}

// Point is a position in percent of the image bounding box
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmark is a labelled anatomical point
type Landmark struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// Line is a reference line between two points, in percent coordinates
type Line struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color string  `json:"color,omitempty"`
}

// NormalRange holds clinically accepted bounds, Min <= Max
type NormalRange struct {
	Min float64
	Max float64
}

// MarshalJSON writes the range as a [min, max] pair
func (r NormalRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Min, r.Max})
}

// UnmarshalJSON reads a [min, max] pair
func (r *NormalRange) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("normal range must be a [min, max] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("normal range must have 2 elements, got %d", len(pair))
	}
	*r = NewNormalRange(pair[0], pair[1])
	return nil
}

// NewNormalRange builds a range with its bounds in order
func NewNormalRange(a, b float64) NormalRange {
	if a > b {
		a, b = b, a
	}
	return NormalRange{Min: a, Max: b}
}

// Contains reports whether v lies inside the range, bounds included
func (r NormalRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// RangeStatus is the result of comparing a measurement with its normal range
type RangeStatus string

const (
	RangeNormal RangeStatus = "normal"
	RangeLow    RangeStatus = "low"
	RangeHigh   RangeStatus = "high"
)

// Label returns the human readable form shown in the measurements table
func (s RangeStatus) Label() string {
	switch s {
	case RangeLow:
		return "Below Normal"
	case RangeHigh:
		return "Above Normal"
	default:
		return "Normal"
	}
}

// Measurement is one clinical metric drawn over one view
type Measurement struct {
	View        View         `json:"view"`
	Label       string       `json:"label"`
	Value       string       `json:"value"`
	Unit        string       `json:"unit,omitempty"`
	NormalRange *NormalRange `json:"normal_range,omitempty"`
	Landmarks   []Landmark   `json:"landmarks,omitempty"`
	Lines       []Line       `json:"lines,omitempty"`
	Position    *Point       `json:"position,omitempty"`
}

// NumericValue parses Value as a number
func (m Measurement) NumericValue() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(m.Value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// RangeStatus compares the value with the normal range.
// Measurements without a range or with a non-numeric value count as normal.
func (m Measurement) RangeStatus() RangeStatus {
	if m.NormalRange == nil {
		return RangeNormal
	}
	v, ok := m.NumericValue()
	if !ok {
		return RangeNormal
	}
	switch {
	case v < m.NormalRange.Min:
		return RangeLow
	case v > m.NormalRange.Max:
		return RangeHigh
	default:
		return RangeNormal
	}
}

// DisplayValue joins the value with its unit, e.g. "23°" or "12 mm"
func (m Measurement) DisplayValue(sep string) string {
	if m.Unit == "" {
		return m.Value
	}
	return m.Value + sep + m.Unit
}

// AnalysisRecord is one analysis as seen by the viewer.
// It is produced by AnalysisPayload.Normalize and is never modified afterwards.
type AnalysisRecord struct {
	ID           string        `json:"id"`
	PatientID    string        `json:"patient_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Notes        string        `json:"notes,omitempty"`
	Status       Status        `json:"status"`
	APImageURL   string        `json:"ap_image_url,omitempty"`
	LatImageURL  string        `json:"lat_image_url,omitempty"`
	ThumbnailURL string        `json:"thumbnail_url,omitempty"`
	Measurements []Measurement `json:"measurements"`
	Summary      string        `json:"summary,omitempty"`

	// detailed is false for history summaries that carry no measurement payload
	detailed bool
}

// HasAP is derived from the presence of the AP image URL
func (r AnalysisRecord) HasAP() bool { return r.APImageURL != "" }

// HasLat is derived from the presence of the lateral image URL
func (r AnalysisRecord) HasLat() bool { return r.LatImageURL != "" }

// Has reports whether the record carries an image for the view
func (r AnalysisRecord) Has(v View) bool {
	switch v {
	case ViewAP:
		return r.HasAP()
	case ViewLat:
		return r.HasLat()
	}
	return false
}

// ImageURL returns the image URL for the view
func (r AnalysisRecord) ImageURL(v View) string {
	if v == ViewAP {
		return r.APImageURL
	}
	if v == ViewLat {
		return r.LatImageURL
	}
	return ""
}

// MeasurementsFor returns the measurements overlaying the given view, in order
func (r AnalysisRecord) MeasurementsFor(v View) []Measurement {
	var out []Measurement
	for _, m := range r.Measurements {
		if m.View == v {
			out = append(out, m)
		}
	}
	return out
}

// NeedsDetail reports whether the record is a summary that must be fetched by id before display
func (r AnalysisRecord) NeedsDetail() bool {
	return !r.detailed || (!r.HasAP() && !r.HasLat())
}

// MarkDetailed flags a record built outside Normalize (e.g. by the dev backend) as complete
func (r AnalysisRecord) MarkDetailed() AnalysisRecord {
	r.detailed = true
	return r
}
