package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/showscout/scout-cli/internal/db"
	"github.com/showscout/scout-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, status, targets, started_at) VALUES ($1, $2, $3, $4)`,
	"update_run_status": `UPDATE runs SET status = $1 WHERE id = $2`,
	"get_run":           `SELECT id, status, targets, succeeded, failed, skipped, conflicted, started_at, finished_at FROM runs WHERE id = $1`,
	"get_run_result":    `SELECT result FROM runs WHERE id = $1`,
	"get_session":       `SELECT cookies FROM sessions WHERE site = $1`,
	"set_session":       `INSERT INTO sessions (site, cookies, updated_at) VALUES ($1, $2, $3) ON CONFLICT (site) DO UPDATE SET cookies = $2, updated_at = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, mainly for tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status      TEXT NOT NULL DEFAULT 'queued',
	targets     INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	conflicted  INTEGER NOT NULL DEFAULT 0,
	result      JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS shows (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	venue       TEXT NOT NULL,
	day         TEXT NOT NULL DEFAULT '',
	start_time  TEXT NOT NULL DEFAULT '',
	end_time    TEXT NOT NULL DEFAULT '',
	dj_name     TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT '',
	zip         TEXT NOT NULL DEFAULT '',
	lat         DOUBLE PRECISION NOT NULL DEFAULT 0,
	lng         DOUBLE PRECISION NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_urls JSONB NOT NULL,
	conflicts   JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	site       TEXT PRIMARY KEY,
	cookies    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_shows_run_id ON shows(run_id);
CREATE INDEX IF NOT EXISTS idx_shows_status ON shows(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_shows_identity
	ON shows(run_id, venue, day, start_time, dj_name);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, targets int) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Status:    model.RunStatusQueued,
		Targets:   targets,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, targets, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.Targets, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1 WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, succeeded = $2, failed = $3, skipped = $4, conflicted = $5,
		        result = $6, finished_at = $7
		 WHERE id = $8`,
		string(run.Status), run.Succeeded, run.Failed, run.Skipped, run.Conflicted,
		resultJSON, run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var finishedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, targets, succeeded, failed, skipped, conflicted, started_at, finished_at
		 FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &r.Targets, &r.Succeeded, &r.Failed, &r.Skipped,
		&r.Conflicted, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if finishedAt != nil {
		r.FinishedAt = *finishedAt
	}
	return &r, nil
}

func (s *PostgresStore) GetRunResult(ctx context.Context, runID string) (*model.RunResult, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM runs WHERE id = $1`, runID,
	).Scan(&resultJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrap(err, "postgres: get run result")
	}
	if resultJSON == nil {
		return nil, nil
	}
	var result model.RunResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	return &result, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, targets, succeeded, failed, skipped, conflicted, started_at, finished_at
	          FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var finishedAt *time.Time
		if err := rows.Scan(&r.ID, &r.Status, &r.Targets, &r.Succeeded, &r.Failed,
			&r.Skipped, &r.Conflicted, &r.StartedAt, &finishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if finishedAt != nil {
			r.FinishedAt = *finishedAt
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var showColumns = []string{
	"id", "run_id", "venue", "day", "start_time", "end_time", "dj_name",
	"address", "city", "state", "zip", "lat", "lng",
	"status", "confidence", "source_urls", "conflicts", "created_at",
}

// SaveShows bulk-upserts the run's show set, keyed on the record identity
// so re-reconciling a run updates rows in place.
func (s *PostgresStore) SaveShows(ctx context.Context, runID string, shows []model.ShowRecord) error {
	if len(shows) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(shows))
	for _, show := range shows {
		sourceJSON, err := json.Marshal(show.SourceURLs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal source urls")
		}
		conflictsJSON, err := json.Marshal(show.Conflicts)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal conflicts")
		}
		rows = append(rows, []any{
			uuid.New().String(), runID, show.Venue, show.Day, show.StartTime, show.EndTime, show.DJName,
			show.Address, show.City, show.State, show.Zip, show.Lat, show.Lng,
			string(show.Status), show.Confidence, sourceJSON, conflictsJSON, now,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "shows",
		Columns:      showColumns,
		ConflictKeys: []string{"run_id", "venue", "day", "start_time", "dj_name"},
	}, rows)
	return eris.Wrapf(err, "postgres: save shows for run %s", runID)
}

func (s *PostgresStore) ListShows(ctx context.Context, runID string, filter ShowFilter) ([]model.ShowRecord, error) {
	query := `SELECT venue, day, start_time, end_time, dj_name,
	                 address, city, state, zip, lat, lng,
	                 status, confidence, source_urls, conflicts
	          FROM shows WHERE true`
	args := []any{}
	argIdx := 1

	if runID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, runID)
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		query += fmt.Sprintf(` AND status = ANY($%d)`, argIdx)
		args = append(args, statuses)
		argIdx++
	}
	query += ` ORDER BY venue, day`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list shows")
	}
	defer rows.Close()

	var shows []model.ShowRecord
	for rows.Next() {
		var show model.ShowRecord
		var sourceJSON, conflictsJSON []byte

		err := rows.Scan(&show.Venue, &show.Day, &show.StartTime, &show.EndTime, &show.DJName,
			&show.Address, &show.City, &show.State, &show.Zip, &show.Lat, &show.Lng,
			&show.Status, &show.Confidence, &sourceJSON, &conflictsJSON)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan show")
		}
		if err := json.Unmarshal(sourceJSON, &show.SourceURLs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source urls")
		}
		if len(conflictsJSON) > 0 {
			if err := json.Unmarshal(conflictsJSON, &show.Conflicts); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal conflicts")
			}
		}
		shows = append(shows, show)
	}
	return shows, eris.Wrap(rows.Err(), "postgres: list shows iterate")
}

func (s *PostgresStore) GetSessionCookies(ctx context.Context, site string) ([]byte, error) {
	var cookies []byte
	err := s.pool.QueryRow(ctx,
		`SELECT cookies FROM sessions WHERE site = $1`, site,
	).Scan(&cookies)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get session cookies")
	}
	return cookies, nil
}

func (s *PostgresStore) SetSessionCookies(ctx context.Context, site string, cookies []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (site, cookies, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (site) DO UPDATE SET cookies = $2, updated_at = $3`,
		site, cookies, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: set session cookies")
}
