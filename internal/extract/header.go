package extract

import (
	"strings"
	"unicode"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// NormalizeHeader collapses a two-row merged header into composite labels,
// or treats row 0 as a conventional header when the first two rows do not
// form one. The two rows qualify when either embeds a week number, the
// first cell of either names the entity column and row 1 reads as labels
// rather than data. A two-row shape without any week number is left as a
// single-row header.
func NormalizeHeader(t model.RawTable, vocab *Vocabulary) model.NormalizedTable {
	if len(t.Rows) == 0 {
		return model.NormalizedTable{}
	}

	width := t.NumCols()
	row0 := padTrim(t.Rows[0], width)

	if len(t.Rows) >= 2 {
		row1 := padTrim(t.Rows[1], width)
		if isTwoRowHeader(row0, row1, vocab) {
			return model.NormalizedTable{
				Header:       compositeLabels(row0, row1, vocab),
				Rows:         dataRows(t.Rows[2:], width),
				TwoRowHeader: true,
			}
		}
	}

	return model.NormalizedTable{
		Header: row0,
		Rows:   dataRows(t.Rows[1:], width),
	}
}

func isTwoRowHeader(row0, row1 []string, vocab *Vocabulary) bool {
	hasWeek := false
	for _, c := range append(append([]string{}, row0...), row1...) {
		if hasWeekNumber(c) {
			hasWeek = true
			break
		}
	}
	if !hasWeek || !isSubLabelRow(row1) {
		return false
	}
	return (len(row0) > 0 && vocab.IsEntityLabel(stripSpace(row0[0]))) ||
		(len(row1) > 0 && vocab.IsEntityLabel(stripSpace(row1[0])))
}

// isSubLabelRow reports whether row, past the entity column, holds at
// least one textual label and no numeric cell. A first data row under a
// single-row header fails this, so it is never consumed as labels.
func isSubLabelRow(row []string) bool {
	labeled := false
	for _, c := range row[min(1, len(row)):] {
		switch {
		case isNumericCell(c):
			return false
		case hasLetter(c):
			labeled = true
		}
	}
	return labeled
}

// isNumericCell reports whether s is a bare number such as "6.2" or
// "1.0%". Week labels like "第46周" parse as numbers but carry letters.
func isNumericCell(s string) bool {
	return !hasLetter(s) && ParsePercent(s) != nil
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

// compositeLabels builds one label per column from a category row and a
// sub-label row. Whitespace is ignored when comparing the two. An empty
// category cell inherits the nearest non-entity category to its left, the
// shape produced when a merged cell is exported as one filled cell and
// blanks.
func compositeLabels(row0, row1 []string, vocab *Vocabulary) []string {
	labels := make([]string, len(row0))
	lastCat := ""
	for i := range row0 {
		a := stripSpace(row0[i])
		b := stripSpace(row1[i])

		if a != "" {
			lastCat = a
		} else if i > 0 && b != "" && !vocab.IsEntityLabel(b) && lastCat != "" && !vocab.IsEntityLabel(lastCat) {
			a = lastCat
		}

		switch {
		case a == "" && vocab.IsEntityLabel(b):
			labels[i] = vocab.EntityLabel
		case a != "" && b != "" && a != b:
			labels[i] = a + "|" + b
		case a != "":
			labels[i] = a
		default:
			labels[i] = b
		}
	}
	return labels
}

func dataRows(rows [][]string, width int) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, padTrim(r, width))
	}
	return out
}

// padTrim returns a copy of r with every cell trimmed, right-padded with
// empty cells to width.
func padTrim(r []string, width int) []string {
	out := make([]string, width)
	for i := 0; i < width && i < len(r); i++ {
		out[i] = strings.TrimSpace(r[i])
	}
	return out
}
