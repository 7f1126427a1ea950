package extract

import (
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// Matcher recognizes one textual representation of a reporting period.
// Match must be a pure function of its input.
type Matcher struct {
	Name  string
	Match func(text string) (model.ReportPeriod, bool)
}

// Fragments shared by the period patterns. Text is NFKC-normalized before
// matching, so 月/日 and ASCII parentheses cover OCR variants.
const (
	reWeekMarker = `(\d{4})\s*年\s*第\s*(\d{1,2})\s*周`
	reOpen       = `\s*[(（]\s*`
	reClose      = `\s*[)）]`
	reSep        = `\s*[-–—~至到]*\s*`
	reMonthDay   = `(\d{1,2})\s*月\s*(\d{1,2})\s*日`
	reYMD        = `(\d{4})\s*年\s*` + reMonthDay
)

var (
	sameYearRange  = regexp.MustCompile(reWeekMarker + reOpen + reMonthDay + reSep + reMonthDay + reClose)
	crossYearRange = regexp.MustCompile(reWeekMarker + reOpen + reYMD + reSep + reYMD + reClose)
	startYearRange = regexp.MustCompile(reWeekMarker + reOpen + reYMD + reSep + reMonthDay + reClose)
	monthlyRange   = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月` + reOpen +
		`第\s*(\d{1,2})\s*周` + reSep + `第?\s*(\d{1,2})\s*周\s*[,，、]\s*` +
		reMonthDay + reSep + reMonthDay + reClose)
	bareWeek     = regexp.MustCompile(reWeekMarker)
	labeledDate  = regexp.MustCompile(`时间\s*[:：]\s*(\d{4})-(\d{1,2})-(\d{1,2})`)
	longDate     = regexp.MustCompile(reYMD)
	filenameDate = regexp.MustCompile(`t(\d{4})(\d{2})(\d{2})_`)
)

// DefaultMatchers returns the document-text matchers in priority order.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{Name: "week_same_year_range", Match: matchSameYearRange},
		{Name: "week_cross_year_range", Match: matchCrossYearRange},
		{Name: "week_start_year_range", Match: matchStartYearRange},
		{Name: "monthly_week_range", Match: matchMonthlyRange},
		{Name: "bare_week", Match: matchBareWeek},
		{Name: "labeled_date", Match: matchLabeledDate},
		{Name: "long_date", Match: matchLongDate},
	}
}

// FilenameMatcher reads the publication date embedded in names like
// t20251015_312973.pdf.
func FilenameMatcher() Matcher {
	return Matcher{Name: "filename_date", Match: matchFilenameDate}
}

// PeriodResolver tries its text matchers in order against the document,
// then its filename matcher against the originating filename.
type PeriodResolver struct {
	Text     []Matcher
	Filename Matcher
}

// NewPeriodResolver returns a resolver with the default matchers.
func NewPeriodResolver() *PeriodResolver {
	return &PeriodResolver{Text: DefaultMatchers(), Filename: FilenameMatcher()}
}

// Resolve returns the first period any matcher recognizes, or the zero
// period when none does. A reference date that disagrees with the ISO week
// is kept and logged.
func (r *PeriodResolver) Resolve(text, filename string) model.ReportPeriod {
	text = NormalizeText(text)

	p, ok := r.resolve(text, filename)
	if !ok {
		zap.L().Debug("extract: no period matched", zap.String("document", filename))
		return model.ReportPeriod{}
	}
	if !p.Consistent() {
		zap.L().Warn("extract: reference date is not the Monday of its ISO week",
			zap.String("document", filename),
			zap.String("matcher", p.Matcher),
			zap.String("reference_date", model.FormatDate(p.Reference)),
			zap.String("report_week", p.WeekLabel()),
		)
	}
	return p
}

func (r *PeriodResolver) resolve(text, filename string) (model.ReportPeriod, bool) {
	for _, m := range r.Text {
		if p, ok := m.Match(text); ok {
			p.Matcher = m.Name
			return p, true
		}
	}
	if r.Filename.Match != nil {
		if p, ok := r.Filename.Match(filename); ok {
			p.Matcher = r.Filename.Name
			return p, true
		}
	}
	return model.ReportPeriod{}, false
}

// "2024年第46周（11月11日-11月17日）". A range that wraps the new year
// belongs to the neighbouring year on the side the week number points to.
func matchSameYearRange(text string) (model.ReportPeriod, bool) {
	m := sameYearRange.FindStringSubmatch(text)
	if m == nil {
		return model.ReportPeriod{}, false
	}
	year, week := atoi(m[1]), atoi(m[2])
	sm, sd, em, ed := atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6])

	startYear, endYear := year, year
	if sm > em {
		if week <= 26 {
			startYear = year - 1
		} else {
			endYear = year + 1
		}
	}
	return weekRange(year, week, startYear, sm, sd, endYear, em, ed)
}

// "2025年第1周（2024年12月30日-2025年1月5日）".
func matchCrossYearRange(text string) (model.ReportPeriod, bool) {
	m := crossYearRange.FindStringSubmatch(text)
	if m == nil {
		return model.ReportPeriod{}, false
	}
	return weekRange(atoi(m[1]), atoi(m[2]),
		atoi(m[3]), atoi(m[4]), atoi(m[5]),
		atoi(m[6]), atoi(m[7]), atoi(m[8]))
}

// "2025年第6周（2025年2月3日-2月9日）".
func matchStartYearRange(text string) (model.ReportPeriod, bool) {
	m := startYearRange.FindStringSubmatch(text)
	if m == nil {
		return model.ReportPeriod{}, false
	}
	sy, sm, sd, em, ed := atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6]), atoi(m[7])
	ey := sy
	if em < sm {
		ey = sy + 1
	}
	return weekRange(atoi(m[1]), atoi(m[2]), sy, sm, sd, ey, em, ed)
}

// "2025年5月（第19周-22周，5月5日-6月1日）". The first week and its start
// date anchor the period; the range end closes it.
func matchMonthlyRange(text string) (model.ReportPeriod, bool) {
	m := monthlyRange.FindStringSubmatch(text)
	if m == nil {
		return model.ReportPeriod{}, false
	}
	year, firstWeek := atoi(m[1]), atoi(m[3])
	sm, sd, em, ed := atoi(m[5]), atoi(m[6]), atoi(m[7]), atoi(m[8])
	endYear := year
	if em < sm {
		endYear = year + 1
	}
	return weekRange(year, firstWeek, year, sm, sd, endYear, em, ed)
}

// "2025年第6周" with no dates: the ISO week's Monday through Sunday. An
// impossible week keeps only the year and week.
func matchBareWeek(text string) (model.ReportPeriod, bool) {
	m := bareWeek.FindStringSubmatch(text)
	if m == nil {
		return model.ReportPeriod{}, false
	}
	year, week := atoi(m[1]), atoi(m[2])
	if week < 1 || week > 53 {
		return model.ReportPeriod{}, false
	}
	p := model.ReportPeriod{Year: year, Week: week}
	if monday, ok := model.ISOWeekMonday(year, week); ok {
		p.Reference = monday
		p.TargetEnd = monday.AddDate(0, 0, 6)
	}
	return p, true
}

// "时间：2025-05-08".
func matchLabeledDate(text string) (model.ReportPeriod, bool) {
	return referenceOnly(labeledDate.FindStringSubmatch(text))
}

// "2025年5月8日" anywhere in the text.
func matchLongDate(text string) (model.ReportPeriod, bool) {
	return referenceOnly(longDate.FindStringSubmatch(text))
}

func matchFilenameDate(name string) (model.ReportPeriod, bool) {
	return referenceOnly(filenameDate.FindStringSubmatch(name))
}

func referenceOnly(m []string) (model.ReportPeriod, bool) {
	if m == nil {
		return model.ReportPeriod{}, false
	}
	d, ok := civilDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	if !ok {
		return model.ReportPeriod{}, false
	}
	return model.ReportPeriod{Reference: d}, true
}

func weekRange(year, week, sy, sm, sd, ey, em, ed int) (model.ReportPeriod, bool) {
	start, ok := civilDate(sy, sm, sd)
	if !ok {
		return model.ReportPeriod{}, false
	}
	end, ok := civilDate(ey, em, ed)
	if !ok || end.Before(start) {
		return model.ReportPeriod{}, false
	}
	p := model.ReportPeriod{Reference: start, TargetEnd: end}
	if week >= 1 && week <= 53 {
		p.Year, p.Week = year, week
	}
	return p, true
}

// civilDate builds a UTC date, rejecting values time.Date would normalize
// (February 30th, month 13).
func civilDate(y, m, d int) (time.Time, bool) {
	if y < 1900 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}
