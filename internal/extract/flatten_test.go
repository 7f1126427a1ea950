package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/surveillance-cli/internal/model"
)

func TestFlatten(t *testing.T) {
	vocab := DefaultVocabulary()
	table := model.NormalizedTable{
		Header: []string{"病原体", "ILI|第6周", "ILI|较上周", "SARI|第6周", "SARI|较上周"},
		Rows: [][]string{
			{"新型冠状病毒", "2.8", "-0.3", "1.0", "-"},
			{"流感  病毒", "12.3%", "", "-", "0.1"},
			{"", "1", "", "1", ""},
			{"合计", "10", "", "3", ""},
			{"0-4岁", "1", "", "1", ""},
			{"注：①阳性率", "", "", "", ""},
			{"病原体", "", "", "", ""},
			{"鼻病毒", "n/a", "", "", ""},
		},
	}
	roles := ResolveRoles(table.Header, vocab)
	period := model.ReportPeriod{
		Reference: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		TargetEnd: time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC),
		Year:      2025,
		Week:      6,
	}

	recs := Flatten(table, roles, period, vocab)
	require.Len(t, recs, 3)

	assert.Equal(t, "新型冠状病毒", recs[0].Pathogen)
	assert.Equal(t, ptr(2.8), recs[0].ILIPercent)
	assert.Equal(t, ptr(1.0), recs[0].SARIPercent)
	assert.Equal(t, "ILI较上周:-0.3", recs[0].Notes)

	assert.Equal(t, "流感 病毒", recs[1].Pathogen, "inner whitespace collapsed")
	assert.Equal(t, ptr(12.3), recs[1].ILIPercent)
	assert.Nil(t, recs[1].SARIPercent)
	assert.Equal(t, "SARI较上周:0.1", recs[1].Notes)

	assert.Equal(t, "鼻病毒", recs[2].Pathogen)
	assert.Nil(t, recs[2].ILIPercent, "row kept with null values")
	assert.Nil(t, recs[2].SARIPercent)

	for _, r := range recs {
		assert.Equal(t, "2025-02-03", r.ReferenceDate)
		assert.Equal(t, "2025-02-09", r.TargetEndDate)
		assert.Equal(t, "2025-06", r.ReportWeek)
	}
}

func TestFlatten_MissingFamilyAndPeriod(t *testing.T) {
	vocab := DefaultVocabulary()
	table := model.NormalizedTable{
		Header: []string{"病原体", "门急诊流感样病例阳性率"},
		Rows:   [][]string{{"呼吸道合胞病毒", "4.5"}},
	}

	recs := Flatten(table, ResolveRoles(table.Header, vocab), model.ReportPeriod{}, vocab)
	require.Len(t, recs, 1)
	assert.Equal(t, ptr(4.5), recs[0].ILIPercent)
	assert.Nil(t, recs[0].SARIPercent)
	assert.Empty(t, recs[0].ReferenceDate)
	assert.Empty(t, recs[0].TargetEndDate)
	assert.Empty(t, recs[0].ReportWeek)
	assert.Empty(t, recs[0].Notes)
}

func TestFlatten_NoRows(t *testing.T) {
	vocab := DefaultVocabulary()
	table := model.NormalizedTable{Header: []string{"病原体", "ILI"}}
	assert.Empty(t, Flatten(table, ResolveRoles(table.Header, vocab), model.ReportPeriod{}, vocab))
}

func TestVocabulary_Stopped(t *testing.T) {
	vocab := DefaultVocabulary()

	tests := []struct {
		name string
		want bool
	}{
		{"合计", true},
		{"总计", true},
		{"病原体", true},
		{"第46周", true},
		{"注：阳性率", true},
		{"①说明", true},
		{"5-14岁", true},
		{"新型冠状病毒", false},
		{"流感病毒", false},
		{"合计病毒", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vocab.Stopped(tt.name))
		})
	}
}
