package history

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"wristsight-viewer/pkg/models"
)

// DateLayout is the format of the date filters
const DateLayout = "2006-01-02"

// PerPage is the fixed number of rows on a history page
const PerPage = 10

var (
	ErrInvalidDate    = errors.New("dates must use the YYYY-MM-DD format")
	ErrDateRangeOrder = errors.New("start date must not be after end date")
)

// Filters are the history form fields as entered by the user
type Filters struct {
	PatientID string `form:"patient_id" json:"patient_id"`
	StartDate string `form:"start_date" json:"start_date"`
	EndDate   string `form:"end_date" json:"end_date"`
}

// Empty reports whether no filter is set
func (f Filters) Empty() bool {
	return f.PatientID == "" && f.StartDate == "" && f.EndDate == ""
}

// Query returns the server-side form of the filters
func (f Filters) Query(limit int) models.HistoryQuery {
	return models.HistoryQuery{
		Limit:     limit,
		PatientID: f.PatientID,
		StartDate: f.StartDate,
		EndDate:   f.EndDate,
	}
}

// Criteria is the parsed form of Filters plus the quick search
type Criteria struct {
	PatientID string
	Start     time.Time // zero means unbounded
	End       time.Time // last instant of the end day; zero means unbounded
	Quick     string
}

// ParseFilters trims the fields and parses the date bounds.
// The start bound is the beginning of its day and the end bound the end of its day, both in UTC.
func ParseFilters(f Filters) (Filters, Criteria, error) {
	f = Filters{
		PatientID: strings.TrimSpace(f.PatientID),
		StartDate: strings.TrimSpace(f.StartDate),
		EndDate:   strings.TrimSpace(f.EndDate),
	}
	c := Criteria{PatientID: f.PatientID}

	if f.StartDate != "" {
		start, err := time.Parse(DateLayout, f.StartDate)
		if err != nil {
			return f, Criteria{}, fmt.Errorf("%w: %q", ErrInvalidDate, f.StartDate)
		}
		c.Start = start
	}
	if f.EndDate != "" {
		end, err := time.Parse(DateLayout, f.EndDate)
		if err != nil {
			return f, Criteria{}, fmt.Errorf("%w: %q", ErrInvalidDate, f.EndDate)
		}
		c.End = end.Add(24*time.Hour - time.Nanosecond)
	}
	if !c.Start.IsZero() && !c.End.IsZero() && c.Start.After(c.End) {
		return f, Criteria{}, ErrDateRangeOrder
	}
	return f, c, nil
}

// Filter returns the records matching every criterion, keeping their order.
// The quick search matches patient ID, id, summary or status.
func Filter(records []models.AnalysisRecord, c Criteria) []models.AnalysisRecord {
	patient := strings.ToLower(c.PatientID)
	quick := strings.ToLower(strings.TrimSpace(c.Quick))

	return lo.Filter(records, func(r models.AnalysisRecord, _ int) bool {
		if patient != "" && !strings.Contains(strings.ToLower(r.PatientID), patient) {
			return false
		}
		if !c.Start.IsZero() && r.Timestamp.Before(c.Start) {
			return false
		}
		if !c.End.IsZero() && r.Timestamp.After(c.End) {
			return false
		}
		if quick == "" {
			return true
		}
		return lo.SomeBy([]string{r.PatientID, r.ID, r.Summary, string(r.Status)}, func(field string) bool {
			return strings.Contains(strings.ToLower(field), quick)
		})
	})
}

// Page is one page of filtered records
type Page struct {
	Records    []models.AnalysisRecord `json:"records"`
	Number     int                     `json:"page"`
	TotalPages int                     `json:"total_pages"`
	Total      int                     `json:"total"`
	HasPrev    bool                    `json:"has_prev"`
	HasNext    bool                    `json:"has_next"`
}

// Paginate cuts a 1-based page out of records. The page number is clamped to the
// available pages; an empty list still has one (empty) page.
func Paginate(records []models.AnalysisRecord, page, perPage int) Page {
	if perPage <= 0 {
		perPage = PerPage
	}
	total := len(records)
	pages := max(1, (total+perPage-1)/perPage)
	page = lo.Clamp(page, 1, pages)

	return Page{
		Records:    lo.Subset(records, (page-1)*perPage, uint(perPage)),
		Number:     page,
		TotalPages: pages,
		Total:      total,
		HasPrev:    page > 1,
		HasNext:    page < pages,
	}
}
