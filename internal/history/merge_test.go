package history

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/surveillance-cli/internal/model"
)

var covidPattern = regexp.MustCompile("新型冠状病毒")

func rec(ref, end, pathogen string, ili *float64) model.SurveillanceRecord {
	return model.SurveillanceRecord{
		ReferenceDate: ref,
		TargetEndDate: end,
		Pathogen:      pathogen,
		ILIPercent:    ili,
	}
}

func TestMerge_NewWins(t *testing.T) {
	existing := []model.SurveillanceRecord{
		rec("2025-01-05", "2025-01-11", "新型冠状病毒", model.Float(5.0)),
		rec("2025-01-05", "2025-01-11", "流感病毒", model.Float(3.0)),
	}
	batch := []model.SurveillanceRecord{
		rec("2025-01-05", "2025-01-11", "新型冠状病毒", model.Float(6.2)),
	}

	merged := Merge(batch, existing)
	require.Len(t, merged, 2)

	byKey := make(map[model.RecordKey]model.SurveillanceRecord, len(merged))
	for _, r := range merged {
		byKey[r.Key()] = r
	}
	covid, ok := byKey[batch[0].Key()]
	require.True(t, ok)
	assert.Equal(t, model.Float(6.2), covid.ILIPercent, "batch row replaces the stored one")
	flu, ok := byKey[existing[1].Key()]
	require.True(t, ok)
	assert.Equal(t, model.Float(3.0), flu.ILIPercent)
	assert.Equal(t, model.Float(5.0), existing[0].ILIPercent, "inputs untouched")
}

func TestMerge_KeyIgnoresWeekAndNormalizesDates(t *testing.T) {
	existing := []model.SurveillanceRecord{
		{ReferenceDate: "2025-1-5", TargetEndDate: "2025-01-11", ReportWeek: "2025-01", Pathogen: "鼻病毒"},
	}
	batch := []model.SurveillanceRecord{
		{ReferenceDate: "2025-01-05", TargetEndDate: "2025-01-11", ReportWeek: "2025-02", Pathogen: " 鼻病毒 "},
	}

	merged := Merge(batch, existing)
	require.Len(t, merged, 1)
	assert.Equal(t, "2025-02", merged[0].ReportWeek)
}

func TestMerge_FirstWithinBatchWins(t *testing.T) {
	batch := []model.SurveillanceRecord{
		rec("2025-02-03", "2025-02-09", "流感病毒", model.Float(1)),
		rec("2025-02-03", "2025-02-09", "流感病毒", model.Float(2)),
	}
	merged := Merge(batch, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, model.Float(1), merged[0].ILIPercent)
}

func TestMerge_Idempotent(t *testing.T) {
	existing := []model.SurveillanceRecord{
		rec("2024-11-11", "2024-11-17", "流感病毒", model.Float(6.2)),
		rec("", "", "腺病毒", nil),
	}
	batch := []model.SurveillanceRecord{
		rec("2025-02-03", "2025-02-09", "新型冠状病毒", model.Float(2.8)),
		rec("2025-02-03", "2025-02-09", "鼻病毒", nil),
	}

	once := Merge(batch, existing)
	twice := Merge(batch, once)
	assert.Equal(t, once, twice)
}

func TestSortRecords(t *testing.T) {
	records := []model.SurveillanceRecord{
		rec("", "", "A", nil),
		rec("2024-11-11", "2024-11-17", "流感病毒", nil),
		rec("2025-02-03", "2025-02-09", "鼻病毒", nil),
		rec("2025-02-03", "2025-02-09", "新型冠状病毒", nil),
		rec("2025-02-03", "2025-02-02", "新型冠状病毒", nil),
		rec("", "", "B", nil),
		rec("2025-2-10", "", "流感病毒", nil),
	}
	SortRecords(records)

	got := make([][2]string, len(records))
	for i, r := range records {
		got[i] = [2]string{r.ReferenceDate, r.Pathogen + "/" + r.TargetEndDate}
	}
	assert.Equal(t, [][2]string{
		{"2025-2-10", "流感病毒/"},
		{"2025-02-03", "新型冠状病毒/2025-02-09"},
		{"2025-02-03", "新型冠状病毒/2025-02-02"},
		{"2025-02-03", "鼻病毒/2025-02-09"},
		{"2024-11-11", "流感病毒/2024-11-17"},
		{"", "A/"},
		{"", "B/"},
	}, got)
}

func TestMerge_SortInvariant(t *testing.T) {
	batch := []model.SurveillanceRecord{
		rec("2024-01-01", "", "b", nil),
		rec("", "", "a", nil),
		rec("2025-06-01", "", "z", nil),
		rec("2025-06-01", "", "a", nil),
	}
	merged := Merge(batch, []model.SurveillanceRecord{rec("2024-06-01", "", "m", nil)})

	for i := 1; i < len(merged); i++ {
		prev, cur := merged[i-1], merged[i]
		if prev.ReferenceDate == cur.ReferenceDate {
			assert.LessOrEqual(t, prev.Pathogen, cur.Pathogen)
			continue
		}
		if cur.ReferenceDate != "" {
			assert.NotEmpty(t, prev.ReferenceDate, "missing dates sort last")
			assert.Greater(t, prev.ReferenceDate, cur.ReferenceDate)
		}
	}
}

func TestSubset(t *testing.T) {
	history := []model.SurveillanceRecord{
		rec("2025-02-03", "2025-02-09", "新型冠状病毒", model.Float(2.8)),
		rec("2025-02-03", "2025-02-09", "流感病毒", nil),
		rec("2025-01-27", "2025-02-02", "新型冠状病毒(XBB)", model.Float(3.1)),
		rec("2025-02-03", "2025-02-09", "新型冠状病毒", model.Float(9.9)),
	}

	covid := Subset(history, covidPattern)
	require.Len(t, covid, 2)
	assert.Equal(t, model.Float(2.8), covid[0].ILIPercent)
	assert.Equal(t, "新型冠状病毒(XBB)", covid[1].Pathogen)

	assert.Empty(t, FilterPathogen(history, regexp.MustCompile("腺病毒")))
}

func TestSummarize(t *testing.T) {
	existing := []model.SurveillanceRecord{rec("2025-01-05", "2025-01-11", "新型冠状病毒", nil)}
	batch := []model.SurveillanceRecord{
		rec("2025-01-05", "2025-01-11", "新型冠状病毒", nil),
		rec("2025-01-12", "2025-01-18", "新型冠状病毒", nil),
		rec("2025-01-12", "2025-01-18", "新型冠状病毒", nil),
	}
	merged := Merge(batch, existing)

	s := summarize(batch, existing, merged, Subset(merged, covidPattern))
	assert.Equal(t, Summary{Batch: 3, Existing: 1, Added: 1, Replaced: 1, Total: 2, Covid: 2}, s)
}
