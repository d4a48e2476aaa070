package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showscout/scout-cli/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "queued", 7, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), 7)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("scraping", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusScraping)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Now().UTC()
	finished := started.Add(time.Minute)
	mock.ExpectQuery(`SELECT id, status, targets`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "status", "targets", "succeeded", "failed", "skipped", "conflicted",
			"started_at", "finished_at",
		}).AddRow("run-1", model.RunStatusComplete, 5, 4, 1, 0, 0, started, &finished))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, run.Succeeded)
	assert.Equal(t, finished, run.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRunResult_Null(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT result FROM runs`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow([]byte(nil)))

	result, err := s.GetRunResult(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestPostgres_ListShows_ReviewQueue(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT venue, day`).
		WithArgs("run-1", []string{"conflict", "error", "skipped"}).
		WillReturnRows(pgxmock.NewRows([]string{
			"venue", "day", "start_time", "end_time", "dj_name",
			"address", "city", "state", "zip", "lat", "lng",
			"status", "confidence", "source_urls", "conflicts",
		}).AddRow("Hideaway", "Tuesday", "21:00", "", "",
			"", "Columbus", "OH", "", 0.0, 0.0,
			model.StatusConflict, 0.6, []byte(`["https://c.example/3"]`),
			[]byte(`[{"field":"lat/lng","reason":"below gate"}]`)))

	shows, err := s.ListShows(context.Background(), "run-1", ShowFilter{Statuses: ReviewStatuses})
	require.NoError(t, err)
	require.Len(t, shows, 1)
	assert.Equal(t, "Hideaway", shows[0].Venue)
	assert.Equal(t, []string{"https://c.example/3"}, shows[0].SourceURLs)
	require.Len(t, shows[0].Conflicts, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SessionCookies(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT cookies FROM sessions`).
		WithArgs("groups.example").
		WillReturnRows(pgxmock.NewRows([]string{"cookies"}))

	got, err := s.GetSessionCookies(context.Background(), "groups.example")
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("groups.example", []byte(`[]`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetSessionCookies(context.Background(), "groups.example", []byte(`[]`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
