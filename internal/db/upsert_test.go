package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     UpsertConfig
		rows    [][]any
		wantErr string
	}{
		{
			name: "empty rows",
			cfg:  UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"}},
		},
		{
			name:    "no columns",
			cfg:     UpsertConfig{Table: "t", ConflictKeys: []string{"id"}},
			rows:    [][]any{{1}},
			wantErr: "no columns specified",
		},
		{
			name:    "no conflict keys",
			cfg:     UpsertConfig{Table: "t", Columns: []string{"id"}},
			rows:    [][]any{{1}},
			wantErr: "no conflict keys specified",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := BulkUpsert(context.Background(), nil, tt.cfg, tt.rows)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, int64(0), n)
		})
	}
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_public_records" \(LIKE "public"."records" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_public_records"}, []string{"k", "v"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "public"."records" \("k", "v"\) SELECT "k", "v" FROM "_tmp_upsert_public_records" ON CONFLICT \("k"\) DO UPDATE SET "v" = EXCLUDED."v"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "public.records",
		Columns:      []string{"k", "v"},
		ConflictKeys: []string{"k"},
	}, [][]any{{"a", 1}, {"b", 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_records"}, []string{"k"}).WillReturnError(fmt.Errorf("connection lost"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "records",
		Columns:      []string{"k"},
		ConflictKeys: []string{"k"},
	}, [][]any{{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for records")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(fmt.Errorf("too many connections"))

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "records",
		Columns:      []string{"k"},
		ConflictKeys: []string{"k"},
	}, [][]any{{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestUpsertSQL(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{
			name: "explicit update columns",
			cfg:  UpsertConfig{Table: "r", Columns: []string{"a", "b", "c"}, ConflictKeys: []string{"a"}, UpdateCols: []string{"c"}},
			want: `INSERT INTO "r" ("a", "b", "c") SELECT "a", "b", "c" FROM "tmp" ON CONFLICT ("a") DO UPDATE SET "c" = EXCLUDED."c"`,
		},
		{
			name: "all columns are keys",
			cfg:  UpsertConfig{Table: "r", Columns: []string{"a"}, ConflictKeys: []string{"a"}},
			want: `INSERT INTO "r" ("a") SELECT "a" FROM "tmp" ON CONFLICT ("a") DO NOTHING`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, upsertSQL(tt.cfg, "tmp"))
		})
	}
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.surveillance_records", `"public"."surveillance_records"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
