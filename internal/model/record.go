// Package model defines the records, tables and periods shared by the extraction and merge stages.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date layout used in persisted tables.
const DateLayout = "2006-01-02"

// SurveillanceRecord is one pathogen row from one bulletin.
// Empty date/week strings and nil percentages mean "absent".
type SurveillanceRecord struct {
	ReferenceDate string   `json:"reference_date"`
	TargetEndDate string   `json:"target_end_date"`
	ReportWeek    string   `json:"report_week"`
	Pathogen      string   `json:"pathogen"`
	ILIPercent    *float64 `json:"ili_percent"`
	SARIPercent   *float64 `json:"sari_percent"`
	Notes         string   `json:"notes,omitempty"`
}

// RecordKey is the natural deduplication key. ReportWeek is not part of it.
type RecordKey struct {
	ReferenceDate string
	TargetEndDate string
	Pathogen      string
}

// Key returns the record's natural key with dates canonicalized.
func (r SurveillanceRecord) Key() RecordKey {
	return RecordKey{
		ReferenceDate: CanonicalDate(r.ReferenceDate),
		TargetEndDate: CanonicalDate(r.TargetEndDate),
		Pathogen:      strings.TrimSpace(r.Pathogen),
	}
}

// Reference parses ReferenceDate. ok is false when the date is empty or malformed.
func (r SurveillanceRecord) Reference() (time.Time, bool) {
	return ParseDate(r.ReferenceDate)
}

// ParseDate parses an ISO date, tolerating surrounding whitespace and
// non-padded month/day values ("2025-1-5").
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-1-2", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// CanonicalDate reformats a parseable date as YYYY-MM-DD and returns
// anything else trimmed but otherwise unchanged.
func CanonicalDate(s string) string {
	if t, ok := ParseDate(s); ok {
		return t.Format(DateLayout)
	}
	return strings.TrimSpace(s)
}

// FormatDate renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// WeekLabel renders an ISO year/week pair as "YYYY-WW".
func WeekLabel(year, week int) string {
	if year <= 0 || week <= 0 {
		return ""
	}
	return fmt.Sprintf("%d-%02d", year, week)
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
