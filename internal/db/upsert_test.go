package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var showCols = []string{"id", "run_id", "venue", "day", "start_time", "status"}

func showRows() [][]any {
	return [][]any{
		{"s1", "r1", "Joe's Bar", "Monday", "20:00", "validated"},
		{"s2", "r1", "Hideaway", "Tuesday", "21:00", "conflict"},
	}
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "shows"}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpsert_Validation(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil,
		UpsertConfig{Table: "shows", ConflictKeys: []string{"id"}}, showRows())
	assert.Error(t, err)

	_, err = BulkUpsert(context.Background(), nil,
		UpsertConfig{Table: "shows", Columns: showCols}, showRows())
	assert.Error(t, err)
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_shows"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_shows"}, showCols).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "shows"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "shows",
		Columns:      showCols,
		ConflictKeys: []string{"run_id", "venue", "day", "start_time"},
	}, showRows())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_shows"}, showCols).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "shows",
		Columns:      showCols,
		ConflictKeys: []string{"id"},
	}, showRows())
	assert.Error(t, err)
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"shows"`, sanitizeTable("shows"))
	assert.Equal(t, `"public"."shows"`, sanitizeTable("public.shows"))
}
