package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/showscout/scout-cli/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'queued',
	targets     INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	conflicted  INTEGER NOT NULL DEFAULT 0,
	result      TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS shows (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	venue       TEXT NOT NULL,
	day         TEXT,
	start_time  TEXT,
	end_time    TEXT,
	dj_name     TEXT,
	address     TEXT,
	city        TEXT,
	state       TEXT,
	zip         TEXT,
	lat         REAL,
	lng         REAL,
	status      TEXT NOT NULL,
	confidence  REAL NOT NULL DEFAULT 0,
	source_urls TEXT NOT NULL,
	conflicts   TEXT,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	site       TEXT PRIMARY KEY,
	cookies    TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_shows_run_id ON shows(run_id);
CREATE INDEX IF NOT EXISTS idx_shows_status ON shows(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, targets int) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Status:    model.RunStatusQueued,
		Targets:   targets,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, targets, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Targets, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE id = ?`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, succeeded = ?, failed = ?, skipped = ?, conflicted = ?,
		        result = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.Succeeded, run.Failed, run.Skipped, run.Conflicted,
		string(resultJSON), run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, targets, succeeded, failed, skipped, conflicted, started_at, finished_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) GetRunResult(ctx context.Context, runID string) (*model.RunResult, error) {
	var resultJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM runs WHERE id = ?`, runID,
	).Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run result")
	}
	if !resultJSON.Valid {
		return nil, nil
	}
	var result model.RunResult
	if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	return &result, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, targets, succeeded, failed, skipped, conflicted, started_at, finished_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveShows replaces the run's show set. Reconciliation is idempotent per
// run, so replace-on-save keeps re-runs from accumulating stale rows.
func (s *SQLiteStore) SaveShows(ctx context.Context, runID string, shows []model.ShowRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save shows")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shows WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear shows for run %s", runID)
	}

	now := time.Now().UTC()
	for _, show := range shows {
		sourceJSON, err := json.Marshal(show.SourceURLs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal source urls")
		}
		conflictsJSON, err := json.Marshal(show.Conflicts)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal conflicts")
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO shows
			 (id, run_id, venue, day, start_time, end_time, dj_name,
			  address, city, state, zip, lat, lng,
			  status, confidence, source_urls, conflicts, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), runID, show.Venue, show.Day, show.StartTime, show.EndTime, show.DJName,
			show.Address, show.City, show.State, show.Zip, show.Lat, show.Lng,
			string(show.Status), show.Confidence, string(sourceJSON), string(conflictsJSON), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert show %s", show.Venue)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save shows")
}

func (s *SQLiteStore) ListShows(ctx context.Context, runID string, filter ShowFilter) ([]model.ShowRecord, error) {
	query := `SELECT venue, day, start_time, end_time, dj_name,
	                 address, city, state, zip, lat, lng,
	                 status, confidence, source_urls, conflicts
	          FROM shows WHERE 1=1`
	var args []any

	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (?` + repeatPlaceholder(len(filter.Statuses)-1) + `)`
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY venue, day`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list shows")
	}
	defer rows.Close()

	var shows []model.ShowRecord
	for rows.Next() {
		var show model.ShowRecord
		var sourceJSON string
		var conflictsJSON sql.NullString

		err := rows.Scan(&show.Venue, &show.Day, &show.StartTime, &show.EndTime, &show.DJName,
			&show.Address, &show.City, &show.State, &show.Zip, &show.Lat, &show.Lng,
			&show.Status, &show.Confidence, &sourceJSON, &conflictsJSON)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan show")
		}
		if err := json.Unmarshal([]byte(sourceJSON), &show.SourceURLs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal source urls")
		}
		if conflictsJSON.Valid {
			if err := json.Unmarshal([]byte(conflictsJSON.String), &show.Conflicts); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal conflicts")
			}
		}
		shows = append(shows, show)
	}
	return shows, eris.Wrap(rows.Err(), "sqlite: list shows iterate")
}

func (s *SQLiteStore) GetSessionCookies(ctx context.Context, site string) ([]byte, error) {
	var cookies string
	err := s.db.QueryRowContext(ctx,
		`SELECT cookies FROM sessions WHERE site = ?`, site,
	).Scan(&cookies)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get session cookies")
	}
	return []byte(cookies), nil
}

func (s *SQLiteStore) SetSessionCookies(ctx context.Context, site string, cookies []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (site, cookies, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (site) DO UPDATE SET cookies = excluded.cookies, updated_at = excluded.updated_at`,
		site, string(cookies), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set session cookies")
}

// helpers

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

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Status, &r.Targets, &r.Succeeded, &r.Failed, &r.Skipped,
		&r.Conflicted, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if finishedAt.Valid {
		r.FinishedAt = finishedAt.Time
	}
	return &r, nil
}
