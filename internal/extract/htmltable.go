package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// maxSpan bounds rowspan/colspan so a malformed attribute cannot allocate
// an unbounded grid.
const maxSpan = 64

// ParseHTMLTable converts the first <table> in fragment into a rectangular
// cell grid. Cells spanning several rows or columns are repeated into every
// slot they cover, so a merged category header reads the same above each
// of its sub-labels.
func ParseHTMLTable(fragment string) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html table")
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, eris.New("extract: no table element")
	}

	// Skip rows of nested tables.
	rows := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	})

	grid := map[[2]int]string{}
	width := 0
	height := rows.Length()

	rows.Each(func(r int, tr *goquery.Selection) {
		c := 0
		tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
			for {
				if _, taken := grid[[2]int{r, c}]; !taken {
					break
				}
				c++
			}
			text := cellText(cell)
			rs := spanAttr(cell, "rowspan")
			cs := spanAttr(cell, "colspan")
			for dr := 0; dr < rs; dr++ {
				for dc := 0; dc < cs; dc++ {
					grid[[2]int{r + dr, c + dc}] = text
				}
			}
			if r+rs > height {
				height = r + rs
			}
			c += cs
			if c > width {
				width = c
			}
		})
	})

	out := make([][]string, 0, height)
	for r := 0; r < height; r++ {
		row := make([]string, width)
		empty := true
		for c := 0; c < width; c++ {
			row[c] = grid[[2]int{r, c}]
			if row[c] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func cellText(cell *goquery.Selection) string {
	cell.Find("br").ReplaceWithHtml(" ")
	return strings.Join(strings.Fields(cell.Text()), " ")
}

func spanAttr(cell *goquery.Selection, name string) int {
	v, ok := cell.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	if n > maxSpan {
		return maxSpan
	}
	return n
}
