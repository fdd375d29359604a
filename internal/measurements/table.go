package measurements

import (
	"fmt"
	"strconv"

	"wristsight-viewer/pkg/models"
)

// NoSummary is shown when the backend sent no summary text
const NoSummary = "No summary available"

// Row is one line of the measurements table
type Row struct {
	View        models.View        `json:"view"`
	Name        string             `json:"name"`
	Value       string             `json:"value"`
	Range       string             `json:"range"`
	Status      models.RangeStatus `json:"status"`
	StatusLabel string             `json:"status_label"`
}

// Info is the analysis header shown next to the images
type Info struct {
	PatientID  string `json:"patient_id"`
	AnalysisID string `json:"analysis_id"`
	Date       string `json:"date"`
	Notes      string `json:"notes"`
	Status     string `json:"status"`
}

// Table is the measurements panel of the analysis screen
type Table struct {
	Info    Info   `json:"info"`
	Rows    []Row  `json:"rows"`
	Summary string `json:"summary"`
}

// Empty reports whether there is nothing to list
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Build renders the table for a record
func Build(rec models.AnalysisRecord) Table {
	t := Table{
		Info: Info{
			PatientID:  orDash(rec.PatientID),
			AnalysisID: orDash(rec.ID),
			Date:       "-",
			Notes:      orDash(rec.Notes),
			Status:     string(rec.Status),
		},
		Rows:    make([]Row, 0, len(rec.Measurements)),
		Summary: rec.Summary,
	}
	if !rec.Timestamp.IsZero() {
		t.Info.Date = rec.Timestamp.Format("2006-01-02")
	}
	if t.Summary == "" {
		t.Summary = NoSummary
	}

	for _, m := range rec.Measurements {
		status := m.RangeStatus()
		t.Rows = append(t.Rows, Row{
			View:        m.View,
			Name:        m.Label,
			Value:       m.DisplayValue(" "),
			Range:       formatRange(m),
			Status:      status,
			StatusLabel: status.Label(),
		})
	}
	return t
}

func formatRange(m models.Measurement) string {
	if m.NormalRange == nil {
		return "N/A"
	}
	r := fmt.Sprintf("%s - %s", formatNumber(m.NormalRange.Min), formatNumber(m.NormalRange.Max))
	if m.Unit != "" {
		r += " " + m.Unit
	}
	return r
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
