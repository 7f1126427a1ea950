// Package history maintains the deduplicated, sorted surveillance history
// and its COVID-19 subset.
package history

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// Merge folds a new batch into the existing history. The batch is placed
// ahead of the existing records and the first record for each natural key
// is kept, so newly extracted values replace old ones. The result is sorted
// with SortRecords. Neither input is modified.
func Merge(batch, existing []model.SurveillanceRecord) []model.SurveillanceRecord {
	seen := make(map[model.RecordKey]struct{}, len(batch)+len(existing))
	out := make([]model.SurveillanceRecord, 0, len(batch)+len(existing))

	for _, src := range [][]model.SurveillanceRecord{batch, existing} {
		for _, r := range src {
			k := r.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, r)
		}
	}

	SortRecords(out)
	return out
}

// SortRecords orders records by reference date descending with missing
// dates last, then pathogen ascending, then target end date descending.
// The sort is stable.
func SortRecords(records []model.SurveillanceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
}

func less(a, b model.SurveillanceRecord) bool {
	ra, rb := model.CanonicalDate(a.ReferenceDate), model.CanonicalDate(b.ReferenceDate)
	if ra != rb {
		switch {
		case ra == "":
			return false
		case rb == "":
			return true
		}
		return ra > rb
	}

	pa, pb := strings.TrimSpace(a.Pathogen), strings.TrimSpace(b.Pathogen)
	if pa != pb {
		return pa < pb
	}

	ea, eb := model.CanonicalDate(a.TargetEndDate), model.CanonicalDate(b.TargetEndDate)
	return ea > eb
}

// FilterPathogen returns the records whose pathogen matches pattern, in
// their original order.
func FilterPathogen(records []model.SurveillanceRecord, pattern *regexp.Regexp) []model.SurveillanceRecord {
	var out []model.SurveillanceRecord
	for _, r := range records {
		if pattern.MatchString(r.Pathogen) {
			out = append(out, r)
		}
	}
	return out
}

// Subset derives a filtered table from the full history by applying the
// same dedup and sort rule to the matching records.
func Subset(history []model.SurveillanceRecord, pattern *regexp.Regexp) []model.SurveillanceRecord {
	return Merge(FilterPathogen(history, pattern), nil)
}

// Summary reports what a merge changed.
type Summary struct {
	// Batch is the number of records offered, Existing the history size
	// before the merge.
	Batch    int `json:"batch"`
	Existing int `json:"existing"`

	// Added counts batch keys absent from the history; Replaced counts
	// batch keys that superseded a historical record.
	Added    int `json:"added"`
	Replaced int `json:"replaced"`

	Total int `json:"total"`
	Covid int `json:"covid"`
}

// summarize counts distinct batch keys that are new or replace history rows.
func summarize(batch, existing, merged, covid []model.SurveillanceRecord) Summary {
	old := make(map[model.RecordKey]struct{}, len(existing))
	for _, r := range existing {
		old[r.Key()] = struct{}{}
	}

	s := Summary{Batch: len(batch), Existing: len(existing), Total: len(merged), Covid: len(covid)}
	counted := make(map[model.RecordKey]struct{}, len(batch))
	for _, r := range batch {
		k := r.Key()
		if _, dup := counted[k]; dup {
			continue
		}
		counted[k] = struct{}{}
		if _, ok := old[k]; ok {
			s.Replaced++
		} else {
			s.Added++
		}
	}
	return s
}
