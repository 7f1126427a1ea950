package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	discovered  INTEGER NOT NULL DEFAULT 0,
	documents   INTEGER NOT NULL DEFAULT 0,
	records     INTEGER NOT NULL DEFAULT 0,
	added       INTEGER NOT NULL DEFAULT 0,
	replaced    INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL UNIQUE,
	file_id        TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	strategy       TEXT NOT NULL DEFAULT '',
	record_count   INTEGER NOT NULL DEFAULT 0,
	reference_date TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	processed_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_run_id ON documents(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

// FinishRun stores the run's counters and final status and stamps
// FinishedAt.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, discovered = ?, documents = ?, records = ?, added = ?,
			replaced = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Discovered, run.Documents, run.Records, run.Added,
		run.Replaced, run.Error, now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	if err := checkRowsAffected(res, "run", run.ID); err != nil {
		return err
	}
	run.FinishedAt = &now
	return nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, discovered, documents, records, added, replaced, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			status   string
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &status, &r.Discovered, &r.Documents, &r.Records,
			&r.Added, &r.Replaced, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = RunStatus(status)
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// RecordDocument inserts or replaces the ledger row for doc.URL. ID and
// ProcessedAt are filled in when zero.
func (s *SQLiteStore) RecordDocument(ctx context.Context, doc *Document) error {
	if doc.URL == "" {
		return eris.New("sqlite: document url is required")
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, run_id, url, file_id, status, strategy, record_count, reference_date, error, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			run_id = excluded.run_id,
			file_id = excluded.file_id,
			status = excluded.status,
			strategy = excluded.strategy,
			record_count = excluded.record_count,
			reference_date = excluded.reference_date,
			error = excluded.error,
			processed_at = excluded.processed_at`,
		doc.ID, doc.RunID, doc.URL, doc.FileID, string(doc.Status), doc.Strategy,
		doc.RecordCount, doc.ReferenceDate, doc.Error, doc.ProcessedAt,
	)
	return eris.Wrapf(err, "sqlite: record document %s", doc.URL)
}

// ListDocuments returns ledger rows, most recently processed first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}

	query := `SELECT id, run_id, url, file_id, status, strategy, record_count, reference_date, error, processed_at FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY processed_at DESC, url DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close() //nolint:errcheck

	var docs []Document
	for rows.Next() {
		var (
			d      Document
			status string
		)
		if err := rows.Scan(&d.ID, &d.RunID, &d.URL, &d.FileID, &status, &d.Strategy,
			&d.RecordCount, &d.ReferenceDate, &d.Error, &d.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		d.Status = DocumentStatus(status)
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: iterate documents")
}

// ProcessedURLs returns the URLs recorded as done. Failed and empty
// documents are retried by later runs.
func (s *SQLiteStore) ProcessedURLs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM documents WHERE status = ?`, string(DocumentDone))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: processed urls")
	}
	defer rows.Close() //nolint:errcheck

	seen := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan url")
		}
		seen[u] = true
	}
	return seen, eris.Wrap(rows.Err(), "sqlite: iterate urls")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
