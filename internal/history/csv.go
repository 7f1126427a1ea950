package history

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/fetcher"
	"github.com/sells-group/surveillance-cli/internal/model"
)

// Columns is the persisted table header, in order.
var Columns = []string{
	"reference_date",
	"target_end_date",
	"report_week",
	"pathogen",
	"ili_percent",
	"sari_percent",
	"notes",
}

// WriteCSV writes records as a BOM-prefixed UTF-8 CSV with the Columns
// header. Absent values are empty cells; percentages are plain decimals.
func WriteCSV(w io.Writer, records []model.SurveillanceRecord) error {
	if err := fetcher.WriteCSV(w, Columns, Rows(records), true); err != nil {
		return eris.Wrap(err, "history: write csv")
	}
	return nil
}

// Rows renders records as string rows in Columns order.
func Rows(records []model.SurveillanceRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ReferenceDate,
			r.TargetEndDate,
			r.ReportWeek,
			r.Pathogen,
			formatPercent(r.ILIPercent),
			formatPercent(r.SARIPercent),
			r.Notes,
		})
	}
	return rows
}

func formatPercent(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ReadCSV parses a history table. Columns are matched by header name, so
// files written before the notes column existed still load. A BOM is
// tolerated. Rows without a pathogen are skipped.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.SurveillanceRecord, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		StripBOM:  true,
		TrimSpace: true,
	})

	var (
		idx       columnIndex
		headerErr error
		records   []model.SurveillanceRecord
	)
	for row := range rowCh {
		switch {
		case headerErr != nil:
			// Drain so the parser goroutine can exit.
		case idx == nil:
			idx, headerErr = newColumnIndex(row.Fields)
		default:
			if rec, ok := idx.record(row.Fields, row.Line); ok {
				records = append(records, rec)
			}
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "history: read csv")
	}
	if headerErr != nil {
		return nil, headerErr
	}
	return records, nil
}

// ReadFile loads records from a CSV or XLSX file, chosen by extension. A
// missing file is an empty history, not an error.
func ReadFile(ctx context.Context, path string) ([]model.SurveillanceRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, nil
		}
		return readXLSX(path)
	default:
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "history: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f)
	}
}

func readXLSX(path string) ([]model.SurveillanceRecord, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "history: read %s", path)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idx, err := newColumnIndex(rows[0])
	if err != nil {
		return nil, err
	}
	var records []model.SurveillanceRecord
	for i, row := range rows[1:] {
		for j := range row {
			row[j] = strings.TrimSpace(row[j])
		}
		if rec, ok := idx.record(row, i+2); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// WriteXLSX exports the history and its COVID-19 subset as two sheets.
func WriteXLSX(path string, all, covid []model.SurveillanceRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "history: create export directory")
	}
	err := fetcher.WriteXLSX(path,
		fetcher.Sheet{Name: "surveillance_all", Header: Columns, Rows: Rows(all)},
		fetcher.Sheet{Name: "surveillance_covid19", Header: Columns, Rows: Rows(covid)},
	)
	if err != nil {
		return eris.Wrap(err, "history: export xlsx")
	}
	return nil
}

// columnIndex maps a column name to its position in the file.
type columnIndex map[string]int

func newColumnIndex(header []string) (columnIndex, error) {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	if _, ok := idx["pathogen"]; !ok {
		return nil, eris.Errorf("history: header has no pathogen column: %v", header)
	}
	return idx, nil
}

func (c columnIndex) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (c columnIndex) record(row []string, line int) (model.SurveillanceRecord, bool) {
	rec := model.SurveillanceRecord{
		ReferenceDate: model.CanonicalDate(c.get(row, "reference_date")),
		TargetEndDate: model.CanonicalDate(c.get(row, "target_end_date")),
		ReportWeek:    c.get(row, "report_week"),
		Pathogen:      c.get(row, "pathogen"),
		ILIPercent:    parsePercent(c.get(row, "ili_percent"), line),
		SARIPercent:   parsePercent(c.get(row, "sari_percent"), line),
		Notes:         c.get(row, "notes"),
	}
	return rec, rec.Pathogen != ""
}

func parsePercent(s string, line int) *float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		zap.L().Warn("history: unparsable percentage", zap.Int("line", line), zap.String("value", s))
		return nil
	}
	return &v
}
