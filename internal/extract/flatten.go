package extract

import (
	"strings"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// Flatten converts data rows into records in source order. Rows without an
// entity name, or whose name is on the vocabulary stoplist, are skipped.
// Unparsable value cells become nil and the row is kept. Every record
// carries the same period.
func Flatten(t model.NormalizedTable, roles model.ColumnRoleMap, p model.ReportPeriod, vocab *Vocabulary) []model.SurveillanceRecord {
	ref := model.FormatDate(p.Reference)
	end := model.FormatDate(p.TargetEnd)
	week := p.WeekLabel()

	var out []model.SurveillanceRecord
	for r := range t.Rows {
		name := strings.Join(strings.Fields(t.Cell(r, roles.Entity.Index)), " ")
		if name == "" || vocab.Stopped(name) {
			continue
		}

		rec := model.SurveillanceRecord{
			ReferenceDate: ref,
			TargetEndDate: end,
			ReportWeek:    week,
			Pathogen:      name,
		}
		if c, ok := roles.Value(model.FamilyILI); ok {
			rec.ILIPercent = ParsePercent(t.Cell(r, c.Index))
		}
		if c, ok := roles.Value(model.FamilySARI); ok {
			rec.SARIPercent = ParsePercent(t.Cell(r, c.Index))
		}
		rec.Notes = deltaNotes(t, r, roles)

		out = append(out, rec)
	}
	return out
}

// deltaNotes renders change-vs-previous-week cells as "ILI较上周:-0.3; SARI较上周:0.1".
func deltaNotes(t model.NormalizedTable, r int, roles model.ColumnRoleMap) string {
	var notes []string
	for _, f := range model.IndicatorFamilies() {
		c, ok := roles.Delta(f)
		if !ok {
			continue
		}
		v := strings.TrimSpace(t.Cell(r, c.Index))
		if v == "" || strings.Trim(v, "-—") == "" {
			continue
		}
		notes = append(notes, familyTag(f)+"较上周:"+v)
	}
	return strings.Join(notes, "; ")
}

func familyTag(f model.Family) string {
	switch f {
	case model.FamilyILI:
		return "ILI"
	case model.FamilySARI:
		return "SARI"
	}
	return string(f)
}
