package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDocumentName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.chinacdc.cn/jksj/jksj04_14275/202502/t20250212_1.html", "t20250212_1"},
		{"update/t20251015_312973.pdf", "t20251015_312973"},
		{"https://example.org/reports/weekly-06.html", "weekly-06"},
		{"https://example.org/reports/latest/", "latest"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentName(tt.in))
		})
	}
	assert.Empty(t, FileID("https://example.org/reports/weekly-06.html"))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{"2025-02-03", date(2025, 2, 3), true},
		{" 2025-2-3 ", date(2025, 2, 3), true},
		{"", time.Time{}, false},
		{"2025/02/03", time.Time{}, false},
		{"2025-13-01", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordKey_CanonicalizesDates(t *testing.T) {
	a := SurveillanceRecord{ReferenceDate: "2025-2-3", TargetEndDate: "2025-02-09", Pathogen: " 鼻病毒 "}
	b := SurveillanceRecord{ReferenceDate: "2025-02-03", TargetEndDate: "2025-2-9", Pathogen: "鼻病毒", ReportWeek: "2025-06"}
	assert.Equal(t, a.Key(), b.Key(), "report week is not part of the key")

	assert.Equal(t, "not a date", CanonicalDate(" not a date "))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "", FormatDate(time.Time{}))
	assert.Equal(t, "2025-02-03", FormatDate(date(2025, 2, 3)))
	assert.Equal(t, "2025-06", WeekLabel(2025, 6))
	assert.Equal(t, "", WeekLabel(0, 6))
	assert.Equal(t, "", WeekLabel(2025, 0))
	require.NotNil(t, Float(2.8))
	assert.InDelta(t, 2.8, *Float(2.8), 1e-9)
}

func TestISOWeekMonday(t *testing.T) {
	tests := []struct {
		year, week int
		want       time.Time
		wantOK     bool
	}{
		{2025, 6, date(2025, 2, 3), true},
		{2024, 1, date(2024, 1, 1), true},
		{2021, 1, date(2021, 1, 4), true},
		{2020, 53, date(2020, 12, 28), true},
		{2025, 53, time.Time{}, false},
		{2025, 0, time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ISOWeekMonday(tt.year, tt.week)
		assert.Equal(t, tt.wantOK, ok, "%d-W%02d", tt.year, tt.week)
		assert.Equal(t, tt.want, got, "%d-W%02d", tt.year, tt.week)
	}
	assert.Equal(t, 53, ISOWeeksInYear(2026))
	assert.Equal(t, 52, ISOWeeksInYear(2025))
}

func TestReportPeriod(t *testing.T) {
	p := ReportPeriod{Reference: date(2025, 2, 3), Year: 2025, Week: 6}
	assert.True(t, p.Usable())
	assert.True(t, p.Consistent())
	assert.Equal(t, "2025-06", p.WeekLabel())

	p.Week = 7
	assert.False(t, p.Consistent())

	assert.True(t, ReportPeriod{Year: 2025, Week: 6}.Consistent(), "missing reference is trivially consistent")
	assert.False(t, ReportPeriod{}.Usable())
	assert.False(t, ReportPeriod{Reference: date(2025, 2, 3), Year: 2025, Week: 60}.Consistent())
}

func TestTables(t *testing.T) {
	raw := RawTable{Rows: [][]string{{"a", "b"}, {"c", "d", "e"}}}
	assert.Equal(t, 2, raw.NumRows())
	assert.Equal(t, 3, raw.NumCols())

	nt := NormalizedTable{Rows: [][]string{{"x", "y"}}}
	assert.Equal(t, "y", nt.Cell(0, 1))
	assert.Equal(t, "", nt.Cell(0, 5))
	assert.Equal(t, "", nt.Cell(3, 0))

	m := ColumnRoleMap{
		Values: map[Family]ColumnRef{
			FamilyILI:  {Index: 1, Week: 5},
			FamilySARI: {Index: 3, Week: 6},
		},
	}
	assert.Equal(t, 6, m.LatestWeek())
	_, ok := m.Delta(FamilyILI)
	assert.False(t, ok)
	c, ok := m.Value(FamilySARI)
	require.True(t, ok)
	assert.Equal(t, 3, c.Index)
}
