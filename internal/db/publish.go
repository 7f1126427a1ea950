package db

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// DefaultTable is the Postgres mirror of the history table.
const DefaultTable = "public.surveillance_records"

// recordColumns mirror history.Columns.
var recordColumns = []string{
	"reference_date",
	"target_end_date",
	"report_week",
	"pathogen",
	"ili_percent",
	"sari_percent",
	"notes",
}

// recordKey is the natural key, the same triple the merge engine dedups on.
var recordKey = []string{"reference_date", "target_end_date", "pathogen"}

// EnsureTable creates the records table and its natural-key constraint if
// they do not exist.
func EnsureTable(ctx context.Context, pool Pool, table string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	reference_date  TEXT NOT NULL DEFAULT '',
	target_end_date TEXT NOT NULL DEFAULT '',
	report_week     TEXT NOT NULL DEFAULT '',
	pathogen        TEXT NOT NULL,
	ili_percent     DOUBLE PRECISION,
	sari_percent    DOUBLE PRECISION,
	notes           TEXT NOT NULL DEFAULT '',
	published_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (%s)
)`, sanitizeTable(table), quoteAndJoin(recordKey))

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "db: ensure table %s", table)
	}
	return nil
}

// PublishRecords upserts records into table on the natural key. The
// history file stays the source of truth; the table is a read replica for
// dashboards.
func PublishRecords(ctx context.Context, pool Pool, table string, records []model.SurveillanceRecord) (int64, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := EnsureTable(ctx, pool, table); err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.ReferenceDate,
			r.TargetEndDate,
			r.ReportWeek,
			r.Pathogen,
			r.ILIPercent,
			r.SARIPercent,
			r.Notes,
		})
	}

	n, err := BulkUpsert(ctx, pool, UpsertConfig{
		Table:        table,
		Columns:      recordColumns,
		ConflictKeys: recordKey,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "db: publish records")
	}

	zap.L().Info("db: published records",
		zap.String("table", table),
		zap.Int("records", len(records)),
		zap.Int64("affected", n),
	)
	return n, nil
}
