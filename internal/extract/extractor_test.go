package extract

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// stubStrategy returns a fixed outcome and counts its calls.
type stubStrategy struct {
	name  string
	res   Result
	err   error
	calls atomic.Int32
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Extract(_ context.Context, _ model.Document) (Result, error) {
	s.calls.Add(1)
	return s.res, s.err
}

func TestHeuristic_PipeDocument(t *testing.T) {
	h := NewHeuristic(DefaultVocabulary())

	res, err := h.Extract(context.Background(), model.Document{Name: "2024-46.md", Text: weeklyPipeDoc})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Positive(t, res.Score)
	assert.Equal(t, "week_same_year_range", res.Period.Matcher)

	covid, flu := res.Records[0], res.Records[1]
	assert.Equal(t, "新型冠状病毒", covid.Pathogen)
	assert.Equal(t, ptr(2.8), covid.ILIPercent, "latest week column")
	assert.Equal(t, ptr(1.0), covid.SARIPercent)

	assert.Equal(t, "流感病毒", flu.Pathogen)
	assert.Equal(t, ptr(6.2), flu.ILIPercent)
	assert.Nil(t, flu.SARIPercent)

	for _, r := range res.Records {
		assert.Equal(t, "2024-11-11", r.ReferenceDate)
		assert.Equal(t, "2024-11-17", r.TargetEndDate)
		assert.Equal(t, "2024-46", r.ReportWeek)
	}
}

func TestHeuristic_HTMLDocument(t *testing.T) {
	h := NewHeuristic(DefaultVocabulary())

	res, err := h.Extract(context.Background(), model.Document{Name: "t20250210_1.md", Text: weeklyHTMLDoc})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	assert.Equal(t, model.SurveillanceRecord{
		ReferenceDate: "2025-02-03",
		TargetEndDate: "2025-02-09",
		ReportWeek:    "2025-06",
		Pathogen:      "新型冠状病毒",
		ILIPercent:    ptr(2.8),
		SARIPercent:   ptr(1.0),
		Notes:         "ILI较上周:-0.3; SARI较上周:-0.2",
	}, res.Records[0])

	assert.Equal(t, "鼻病毒", res.Records[1].Pathogen)
	assert.Equal(t, ptr(12.3), res.Records[1].ILIPercent)
	assert.Nil(t, res.Records[1].SARIPercent)
	assert.Equal(t, "ILI较上周:↑0.5", res.Records[1].Notes)
}

func TestHeuristic_KangxiDocument(t *testing.T) {
	h := NewHeuristic(DefaultVocabulary())

	res, err := h.Extract(context.Background(), model.Document{Name: "kangxi.md", Text: kangxiDoc})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "呼吸道合胞病毒", res.Records[0].Pathogen)
	assert.Equal(t, ptr(4.5), res.Records[0].ILIPercent)
	assert.Equal(t, "2024-11-11", res.Records[0].ReferenceDate)
	assert.Equal(t, "2024-11-17", res.Records[0].TargetEndDate)
}

func TestHeuristic_NoTable(t *testing.T) {
	h := NewHeuristic(DefaultVocabulary())

	_, err := h.Extract(context.Background(), model.Document{Name: "none.md", Text: noTableDoc})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoTable))
}

func TestHeuristic_OnlyStoppedRows(t *testing.T) {
	h := NewHeuristic(DefaultVocabulary())
	doc := "| 病原体 | ILI |\n| --- | --- |\n| 合计 | 1 |\n"

	_, err := h.Extract(context.Background(), model.Document{Name: "totals.md", Text: doc})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoRecords))
}

func TestHeuristic_WeekFromColumnLabels(t *testing.T) {
	h := NewHeuristic(DefaultVocabulary())
	doc := "| 病原体 | 门急诊流感样病例 |  |\n| --- | --- | --- |\n|  | 第21周 | 第22周 |\n| 流感病毒 | 1.0 | 2.0 |\n"

	res, err := h.Extract(context.Background(), model.Document{Name: "t20250603_1.md", Text: doc})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "2025-06-03", res.Records[0].ReferenceDate)
	assert.Equal(t, "2025-22", res.Records[0].ReportWeek)
	assert.Equal(t, ptr(2.0), res.Records[0].ILIPercent)
}

func TestInferWeek(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name     string
		p        model.ReportPeriod
		week     int
		filename string
		want     string
	}{
		{"existing week kept", model.ReportPeriod{Year: 2024, Week: 46}, 6, "x.md", "2024-46"},
		{"no column week", model.ReportPeriod{Reference: day(2025, 2, 3)}, 0, "x.md", ""},
		{"year from reference", model.ReportPeriod{Reference: day(2025, 2, 3)}, 6, "x.md", "2025-06"},
		{"week 52 column in january", model.ReportPeriod{Reference: day(2025, 1, 6)}, 52, "x.md", "2024-52"},
		{"iso year differs from calendar year", model.ReportPeriod{Reference: day(2024, 12, 30)}, 1, "x.md", "2025-01"},
		{"week 1 column in december", model.ReportPeriod{Reference: day(2024, 12, 23)}, 1, "x.md", "2025-01"},
		{"week 53 in a 52-week year", model.ReportPeriod{Reference: day(2025, 12, 29)}, 53, "x.md", ""},
		{"week 53 in a 53-week year", model.ReportPeriod{Reference: day(2021, 1, 4)}, 53, "x.md", "2020-53"},
		{"year from filename date", model.ReportPeriod{}, 6, "t20240210_1.md", "2024-06"},
		{"leading digits are not a year", model.ReportPeriod{}, 46, "dir/2023-week46.md", ""},
		{"no year available", model.ReportPeriod{}, 6, "bulletin.md", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferWeek(tt.p, tt.week, tt.filename).WeekLabel())
		})
	}
}

func TestHeuristic_SingleRowHeaderWithWeekNumbers(t *testing.T) {
	h := NewHeuristic(DefaultVocabulary())
	doc := "2024年第46周（11月11日-11月17日）\n\n" +
		"| 病原体 | 门急诊流感样病例第46周阳性率(%) | 住院严重急性呼吸道感染病例第46周阳性率(%) |\n" +
		"| --- | --- | --- |\n" +
		"| 新型冠状病毒 | 2.8 | 1.0 |\n" +
		"| 流感病毒 | 6.2 | 2.0 |\n" +
		"| 鼻病毒 | 4.1 | 1.5 |\n"

	res, err := h.Extract(context.Background(), model.Document{Name: "2024-46.md", Text: doc})
	require.NoError(t, err)
	require.Len(t, res.Records, 3, "the first data row is not a sub-label row")

	covid := res.Records[0]
	assert.Equal(t, "新型冠状病毒", covid.Pathogen)
	assert.Equal(t, ptr(2.8), covid.ILIPercent)
	assert.Equal(t, ptr(1.0), covid.SARIPercent)
	assert.Equal(t, "2024-46", covid.ReportWeek)
}

func TestExtractor_StrategyFallback(t *testing.T) {
	empty := &stubStrategy{name: "first", err: ErrNoTable}
	failing := &stubStrategy{name: "second", err: errors.New("boom")}
	good := &stubStrategy{name: "third", res: Result{Records: []model.SurveillanceRecord{{Pathogen: "流感病毒"}}}}
	unused := &stubStrategy{name: "fourth"}

	e := NewExtractor(1, empty, failing, good, unused)
	res := e.Extract(context.Background(), model.Document{Name: "a.md"})

	require.True(t, res.OK())
	assert.Equal(t, "third", res.Strategy)
	assert.Equal(t, "a.md", res.Document)
	assert.Equal(t, int32(1), empty.calls.Load())
	assert.Equal(t, int32(1), failing.calls.Load())
	assert.Equal(t, int32(0), unused.calls.Load())
}

func TestExtractor_AllStrategiesFail(t *testing.T) {
	nothing := &stubStrategy{name: "nothing"}
	failing := &stubStrategy{name: "failing", err: errors.New("boom")}

	res := NewExtractor(1, nothing, failing).Extract(context.Background(), model.Document{Name: "a.md"})
	assert.False(t, res.OK())
	assert.Empty(t, res.Strategy)
	require.Error(t, res.Err)
	assert.Equal(t, "boom", res.Err.Error(), "last failure is reported")

	res = NewExtractor(1, nothing).Extract(context.Background(), model.Document{Name: "a.md"})
	assert.True(t, eris.Is(res.Err, ErrNoRecords), "empty result counts as no records")

	res = NewExtractor(1).Extract(context.Background(), model.Document{Name: "a.md"})
	assert.True(t, eris.Is(res.Err, ErrNoTable))
}

func TestExtractor_ExtractBatch(t *testing.T) {
	e := NewExtractor(3, NewHeuristic(DefaultVocabulary()))
	docs := []model.Document{
		{Name: "2024-46.md", Text: weeklyPipeDoc},
		{Name: "none.md", Text: noTableDoc},
		{Name: "t20250210_1.md", Text: weeklyHTMLDoc},
	}

	records, results, err := e.ExtractBatch(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK(), "document without a table does not fail the batch")
	assert.True(t, eris.Is(results[1].Err, ErrNoTable))
	assert.True(t, results[2].OK())

	for i, d := range docs {
		assert.Equal(t, d.Name, results[i].Document)
	}

	require.Len(t, records, 4)
	assert.Equal(t, "新型冠状病毒", records[0].Pathogen)
	assert.Equal(t, "2024-11-11", records[0].ReferenceDate)
	assert.Equal(t, "流感病毒", records[1].Pathogen)
	assert.Equal(t, "2025-02-03", records[2].ReferenceDate)
	assert.Equal(t, "鼻病毒", records[3].Pathogen)
}

func TestExtractor_ExtractBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &stubStrategy{name: "never"}
	_, _, err := NewExtractor(2, s).ExtractBatch(ctx, []model.Document{{Name: "a.md"}, {Name: "b.md"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: batch")
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestExtractor_ExtractBatchEmpty(t *testing.T) {
	records, results, err := NewExtractor(0).ExtractBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, results)
}
