package extract

import (
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// ResolveRoles maps header labels to semantic roles.
//
// The entity column is the first label containing an entity keyword, or
// column 0. For each indicator family, delta columns ("较上周") are set
// aside; among the remaining family columns the one embedding the largest
// week number wins, then the first label carrying a percent marker, then
// the only candidate. A family with no decisive column is left unmapped.
func ResolveRoles(header []string, vocab *Vocabulary) model.ColumnRoleMap {
	m := model.ColumnRoleMap{
		Values: make(map[model.Family]model.ColumnRef),
		Deltas: make(map[model.Family]model.ColumnRef),
	}

	m.Entity = model.ColumnRef{Index: 0}
	for i, label := range header {
		if vocab.IsEntityLabel(label) {
			m.Entity = model.ColumnRef{Index: i, Label: label}
			break
		}
	}
	if m.Entity.Label == "" && len(header) > 0 {
		m.Entity.Label = header[0]
	}

	for _, f := range model.IndicatorFamilies() {
		var values, deltas []model.ColumnRef
		for i, label := range header {
			if i == m.Entity.Index || !containsAny(label, vocab.Keys(f)) {
				continue
			}
			ref := model.ColumnRef{Index: i, Label: label, Week: maxWeekNumber(label)}
			if vocab.IsDeltaLabel(label) {
				deltas = append(deltas, ref)
				continue
			}
			values = append(values, ref)
		}

		value, ok := pickValueColumn(values, vocab)
		if ok {
			m.Values[f] = value
		} else if len(values) > 1 {
			zap.L().Debug("extract: ambiguous value columns",
				zap.String("family", string(f)),
				zap.Int("candidates", len(values)),
			)
		}
		if d, ok := pickDeltaColumn(deltas, value, ok); ok {
			m.Deltas[f] = d
		}
	}
	return m
}

func pickValueColumn(cands []model.ColumnRef, vocab *Vocabulary) (model.ColumnRef, bool) {
	var best model.ColumnRef
	found := false
	for _, c := range cands {
		if c.Week > 0 && (!found || c.Week > best.Week) {
			best, found = c, true
		}
	}
	if found {
		return best, true
	}

	for _, c := range cands {
		if containsAny(c.Label, vocab.PercentMarkers) {
			return c, true
		}
	}

	if len(cands) == 1 {
		return cands[0], true
	}
	return model.ColumnRef{}, false
}

// pickDeltaColumn prefers the first delta column to the right of the chosen
// value column, so each family's change annotation sits beside its value.
func pickDeltaColumn(deltas []model.ColumnRef, value model.ColumnRef, hasValue bool) (model.ColumnRef, bool) {
	if len(deltas) == 0 {
		return model.ColumnRef{}, false
	}
	if hasValue {
		for _, d := range deltas {
			if d.Index > value.Index {
				return d, true
			}
		}
	}
	return deltas[0], true
}
