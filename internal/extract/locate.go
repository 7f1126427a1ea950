package extract

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/model"
)

var (
	markupTable  = regexp.MustCompile(`(?is)<table\b.*?</table\s*>`)
	alignmentRow = regexp.MustCompile(`^:?-{2,}:?$`)
)

const escapedPipe = "\x00"

// LocateTables returns every candidate table in text. Pipe-delimited runs
// of at least two lines and <table> markup regions are listed in document
// order. When text carries a section caption (表1), the first table after
// it is prepended as the primary candidate so it wins score ties. The
// result depends only on text and vocab.
func LocateTables(text string, vocab *Vocabulary) []model.RawTable {
	var tables []model.RawTable
	tables = append(tables, pipeTables(text)...)
	tables = append(tables, markupTables(text)...)
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Start < tables[j].Start })

	if re := vocab.section(); re != nil {
		if loc := re.FindStringIndex(text); loc != nil {
			for _, t := range tables {
				if t.Start >= loc[1] {
					primary := t
					primary.Primary = true
					return append([]model.RawTable{primary}, tables...)
				}
			}
		}
	}
	return tables
}

// pipeTables finds maximal runs of lines that begin with "|".
func pipeTables(text string) []model.RawTable {
	var out []model.RawTable

	var (
		run   []string
		start = -1
		end   int
	)
	flush := func() {
		if len(run) >= 2 {
			if rows := parsePipeRows(run); len(rows) > 0 {
				out = append(out, model.RawTable{
					Source: model.TableSourcePipe,
					Rows:   rows,
					Start:  start,
					End:    end,
				})
			}
		}
		run = run[:0]
		start = -1
	}

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			if start < 0 {
				start = offset
			}
			run = append(run, line)
			end = offset + len(strings.TrimRight(line, "\r\n"))
		} else {
			flush()
		}
		offset += len(line)
	}
	flush()
	return out
}

// parsePipeRows splits pipe-delimited lines into cells, drops Markdown
// alignment rows and pads every row to the widest row's width.
func parsePipeRows(lines []string) [][]string {
	var rows [][]string
	width := 0
	for _, ln := range lines {
		s := strings.TrimSpace(ln)
		s = strings.ReplaceAll(s, `\|`, escapedPipe)
		s = strings.TrimPrefix(s, "|")
		s = strings.TrimSuffix(s, "|")
		if strings.TrimSpace(s) == "" {
			continue
		}
		parts := strings.Split(s, "|")
		cells := make([]string, len(parts))
		for i, p := range parts {
			cells[i] = strings.TrimSpace(strings.ReplaceAll(p, escapedPipe, "|"))
		}
		if isAlignmentRow(cells) {
			continue
		}
		if len(cells) > width {
			width = len(cells)
		}
		rows = append(rows, cells)
	}
	for i, r := range rows {
		if len(r) < width {
			rows[i] = append(r, make([]string, width-len(r))...)
		}
	}
	return rows
}

func isAlignmentRow(cells []string) bool {
	seen := false
	for _, c := range cells {
		if c == "" {
			continue
		}
		if !alignmentRow.MatchString(strings.ReplaceAll(c, " ", "")) {
			return false
		}
		seen = true
	}
	return seen
}

// markupTables parses each <table> region into a grid. Regions that fail to
// parse are skipped.
func markupTables(text string) []model.RawTable {
	var out []model.RawTable
	for _, loc := range markupTable.FindAllStringIndex(text, -1) {
		rows, err := ParseHTMLTable(text[loc[0]:loc[1]])
		if err != nil {
			zap.L().Debug("extract: skip markup table", zap.Int("offset", loc[0]), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			continue
		}
		out = append(out, model.RawTable{
			Source: model.TableSourceMarkup,
			Rows:   rows,
			Start:  loc[0],
			End:    loc[1],
		})
	}
	return out
}
