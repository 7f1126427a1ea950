package model

// TableSource identifies how a candidate table was found in the document.
type TableSource string

const (
	TableSourcePipe   TableSource = "pipe"
	TableSourceMarkup TableSource = "markup"
)

// Family is a keyword family used for scoring and column roles.
type Family string

const (
	FamilyEntity Family = "entity"
	FamilyILI    Family = "ili"
	FamilySARI   Family = "sari"
)

// IndicatorFamilies returns the indicator families in output order.
func IndicatorFamilies() []Family {
	return []Family{FamilyILI, FamilySARI}
}

// AllFamilies returns every keyword family, entity first.
func AllFamilies() []Family {
	return []Family{FamilyEntity, FamilyILI, FamilySARI}
}

// RawTable is a cell grid recovered from one region of a document.
type RawTable struct {
	Source TableSource
	Rows   [][]string

	// Start and End are byte offsets of the region in the source text.
	Start int
	End   int

	// Primary is set for the table that follows a section label ("表1").
	Primary bool
}

// NumRows returns the row count including header rows.
func (t RawTable) NumRows() int { return len(t.Rows) }

// NumCols returns the widest row's cell count.
func (t RawTable) NumCols() int {
	n := 0
	for _, r := range t.Rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}

// NormalizedTable has exactly one header label per data column.
type NormalizedTable struct {
	Header []string
	Rows   [][]string

	// TwoRowHeader records whether a merged two-row header was collapsed.
	TwoRowHeader bool
}

// Cell returns row r, column c, or "" when out of range.
func (t NormalizedTable) Cell(r, c int) string {
	if r < 0 || r >= len(t.Rows) || c < 0 || c >= len(t.Rows[r]) {
		return ""
	}
	return t.Rows[r][c]
}

// ColumnRef points at one column of a NormalizedTable.
type ColumnRef struct {
	Index int
	Label string

	// Week is the largest week number embedded in Label, or 0.
	Week int
}

// ColumnRoleMap assigns semantic roles to columns. It is read-only once built.
type ColumnRoleMap struct {
	Entity ColumnRef
	Values map[Family]ColumnRef
	Deltas map[Family]ColumnRef
}

// Value returns the value column for a family.
func (m ColumnRoleMap) Value(f Family) (ColumnRef, bool) {
	c, ok := m.Values[f]
	return c, ok
}

// Delta returns the change-vs-previous-period column for a family.
func (m ColumnRoleMap) Delta(f Family) (ColumnRef, bool) {
	c, ok := m.Deltas[f]
	return c, ok
}

// LatestWeek returns the largest week embedded in any value column, or 0.
func (m ColumnRoleMap) LatestWeek() int {
	w := 0
	for _, c := range m.Values {
		if c.Week > w {
			w = c.Week
		}
	}
	return w
}
