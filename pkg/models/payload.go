package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The backend has sent several shapes for the same record over time. The types in this
// file accept all of them; Normalize is the only place that maps them onto AnalysisRecord.
//
//	flat ap_image_url / lat_image_url      -> APImageURL / LatImageURL
//	image_urls{ap_image_url,lat_image_url} -> same, nested wins when present
//	has_ap / has_lat                       -> ignored, derived from URLs
//	analysis_id                            -> ID when id is missing
//	name                                   -> Label when label is missing
//	value as number or string              -> Value string
//	normal_range [a,b] or "a-b unit"       -> NormalRange{min,max}

// FlexString decodes a JSON string or number into a string
type FlexString string

// UnmarshalJSON accepts "12.1", 12.1 and null
func (s *FlexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("value must be a string or a number: %w", err)
	}
	*s = FlexString(num.String())
	return nil
}

// Timestamp decodes backend timestamps with or without a zone offset
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON parses the timestamp; zone-less values are read as UTC
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp format %q", raw)
}

// RangePayload decodes a normal range sent as [min, max] or as "min-max unit"
type RangePayload struct {
	Range *NormalRange
}

var rangeStringPattern = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*-\s*(-?\d+(?:\.\d+)?)`)

// UnmarshalJSON accepts both encodings; an unparsable string leaves the range empty
func (p *RangePayload) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		p.Range = nil
		return nil
	case strings.HasPrefix(raw, "["):
		var r NormalRange
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		p.Range = &r
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("normal range must be a pair or a string: %w", err)
	}
	m := rangeStringPattern.FindStringSubmatch(str)
	if m == nil {
		p.Range = nil
		return nil
	}
	lo, _ := strconv.ParseFloat(m[1], 64)
	hi, _ := strconv.ParseFloat(m[2], 64)
	r := NewNormalRange(lo, hi)
	p.Range = &r
	return nil
}

// PointPayload is a point whose coordinates may be missing
type PointPayload struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// LandmarkPayload is a landmark whose coordinates may be missing
type LandmarkPayload struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Label string   `json:"label"`
}

// LinePayload is a reference line whose coordinates may be missing
type LinePayload struct {
	X1    *float64 `json:"x1"`
	Y1    *float64 `json:"y1"`
	X2    *float64 `json:"x2"`
	Y2    *float64 `json:"y2"`
	Color string   `json:"color"`
}

// MeasurementPayload is a measurement as sent by the backend
type MeasurementPayload struct {
	View        string            `json:"view"`
	Label       string            `json:"label"`
	Name        string            `json:"name"`
	Value       FlexString        `json:"value"`
	Unit        string            `json:"unit"`
	NormalRange RangePayload      `json:"normal_range"`
	Landmarks   []LandmarkPayload `json:"landmarks"`
	Lines       []LinePayload     `json:"lines"`
	Position    *PointPayload     `json:"position"`
}

// ImageURLs is the nested image URL object sent by the history endpoint
type ImageURLs struct {
	APImageURL  *string `json:"ap_image_url"`
	LatImageURL *string `json:"lat_image_url"`
}

// AnalysisPayload is an analysis detail or history summary as sent by the backend
type AnalysisPayload struct {
	ID           string                `json:"id"`
	AnalysisID   string                `json:"analysis_id"`
	PatientID    string                `json:"patient_id"`
	Timestamp    Timestamp             `json:"timestamp"`
	Notes        *string               `json:"notes"`
	Status       string                `json:"status"`
	APImageURL   *string               `json:"ap_image_url"`
	LatImageURL  *string               `json:"lat_image_url"`
	HasAP        *bool                 `json:"has_ap"`
	HasLat       *bool                 `json:"has_lat"`
	ImageURLs    *ImageURLs            `json:"image_urls"`
	ThumbnailURL *string               `json:"thumbnail_url"`
	Measurements *[]MeasurementPayload `json:"measurements"`
	Summary      string                `json:"summary"`
}

// Normalize maps the payload onto the canonical record.
// Entries with missing coordinates are dropped one by one, never the whole measurement.
func (p AnalysisPayload) Normalize() AnalysisRecord {
	rec := AnalysisRecord{
		ID:           firstNonEmpty(p.ID, p.AnalysisID),
		PatientID:    p.PatientID,
		Timestamp:    p.Timestamp.Time,
		Notes:        deref(p.Notes),
		Status:       ParseStatus(p.Status),
		APImageURL:   deref(p.APImageURL),
		LatImageURL:  deref(p.LatImageURL),
		ThumbnailURL: deref(p.ThumbnailURL),
		Summary:      p.Summary,
		Measurements: []Measurement{},
	}

	// nested fields win one by one when present
	if p.ImageURLs != nil {
		if p.ImageURLs.APImageURL != nil {
			rec.APImageURL = *p.ImageURLs.APImageURL
		}
		if p.ImageURLs.LatImageURL != nil {
			rec.LatImageURL = *p.ImageURLs.LatImageURL
		}
	}

	if p.Measurements == nil {
		return rec
	}
	rec.detailed = true

	detail := rec.HasAP() || rec.HasLat()
	for _, mp := range *p.Measurements {
		m, ok := mp.normalize()
		if !ok {
			continue
		}
		// measurements must overlay an image that the record actually has
		if detail && !rec.Has(m.View) {
			continue
		}
		rec.Measurements = append(rec.Measurements, m)
	}
	return rec
}

func (mp MeasurementPayload) normalize() (Measurement, bool) {
	view, ok := ParseView(mp.View)
	if !ok {
		return Measurement{}, false
	}

	m := Measurement{
		View:        view,
		Label:       firstNonEmpty(mp.Label, mp.Name),
		Value:       string(mp.Value),
		Unit:        mp.Unit,
		NormalRange: mp.NormalRange.Range,
	}

	for _, lp := range mp.Landmarks {
		if lp.X == nil || lp.Y == nil {
			continue
		}
		m.Landmarks = append(m.Landmarks, Landmark{X: *lp.X, Y: *lp.Y, Label: lp.Label})
	}
	for _, ln := range mp.Lines {
		if ln.X1 == nil || ln.Y1 == nil || ln.X2 == nil || ln.Y2 == nil {
			continue
		}
		m.Lines = append(m.Lines, Line{X1: *ln.X1, Y1: *ln.Y1, X2: *ln.X2, Y2: *ln.Y2, Color: ln.Color})
	}
	if mp.Position != nil && mp.Position.X != nil && mp.Position.Y != nil {
		m.Position = &Point{X: *mp.Position.X, Y: *mp.Position.Y}
	}
	return m, true
}

// NormalizeAll maps a list of payloads
func NormalizeAll(payloads []AnalysisPayload) []AnalysisRecord {
	records := make([]AnalysisRecord, 0, len(payloads))
	for _, p := range payloads {
		records = append(records, p.Normalize())
	}
	return records
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
