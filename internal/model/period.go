package model

import "time"

// ReportPeriod is the reporting window a bulletin covers.
// Zero times and a zero Week mean the component is absent.
type ReportPeriod struct {
	Reference time.Time
	TargetEnd time.Time
	Year      int
	Week      int

	// Matcher names the pattern that produced the period.
	Matcher string
}

// HasReference reports whether a reference start date was resolved.
func (p ReportPeriod) HasReference() bool { return !p.Reference.IsZero() }

// HasWeek reports whether an ISO year/week pair was resolved.
func (p ReportPeriod) HasWeek() bool { return p.Year > 0 && p.Week > 0 }

// Usable reports whether records built from this period can be placed in time.
func (p ReportPeriod) Usable() bool { return p.HasReference() || p.HasWeek() }

// WeekLabel returns "YYYY-WW" or "".
func (p ReportPeriod) WeekLabel() string { return WeekLabel(p.Year, p.Week) }

// Consistent reports whether the reference date is the Monday of the ISO
// week. Periods missing either component are trivially consistent.
func (p ReportPeriod) Consistent() bool {
	if !p.HasReference() || !p.HasWeek() {
		return true
	}
	monday, ok := ISOWeekMonday(p.Year, p.Week)
	if !ok {
		return false
	}
	return monday.Equal(p.Reference)
}

// ISOWeekMonday returns the Monday of ISO week `week` in ISO year `year`.
// ok is false when the week does not exist in that year.
func ISOWeekMonday(year, week int) (time.Time, bool) {
	if year <= 0 || week < 1 || week > ISOWeeksInYear(year) {
		return time.Time{}, false
	}
	// Jan 4 is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	week1 := jan4.AddDate(0, 0, -offset)
	return week1.AddDate(0, 0, (week-1)*7), true
}

// ISOWeeksInYear returns 52 or 53.
func ISOWeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}
