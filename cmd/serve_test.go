package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showscout/scout-cli/internal/config"
	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/internal/store"
)

func newServeFixture(t *testing.T) (http.Handler, *model.Run) {
	t.Helper()

	cfg = &config.Config{}
	cfg.Server.AllowedOrigins = []string{"*"}

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	run, err := st.CreateRun(context.Background(), 3)
	require.NoError(t, err)
	require.NoError(t, st.SaveShows(context.Background(), run.ID, []model.ShowRecord{
		{Venue: "Joe's Bar", Day: "Monday", Status: model.StatusValidated, SourceURLs: []string{"u"}},
		{Venue: "Hideaway", Day: "Tuesday", Status: model.StatusConflict, SourceURLs: []string{"u"}},
	}))

	return newReviewRouter(st), run
}

func TestServe_Health(t *testing.T) {
	router, _ := newServeFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_ListRuns(t *testing.T) {
	router, run := newServeFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestServe_GetRun_NotFound(t *testing.T) {
	router, _ := newServeFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_ReviewQueue(t *testing.T) {
	router, run := newServeFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID+"/shows?review=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var shows []model.ShowRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shows))
	require.Len(t, shows, 1)
	assert.Equal(t, "Hideaway", shows[0].Venue)
}
