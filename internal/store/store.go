// Package store persists pipeline runs, their reconciled show records,
// and saved browser sessions. Two backends: SQLite for single-operator
// local use, Postgres for the shared deployment.
package store

import (
	"context"

	"github.com/showscout/scout-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// ShowFilter narrows a show listing, e.g. to the review queue.
type ShowFilter struct {
	Statuses []model.RecordStatus `json:"statuses,omitempty"`
}

// ReviewStatuses are the record statuses that need a human look.
var ReviewStatuses = []model.RecordStatus{
	model.StatusConflict,
	model.StatusError,
	model.StatusSkipped,
}

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, targets int) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, run *model.Run, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	GetRunResult(ctx context.Context, runID string) (*model.RunResult, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Shows
	SaveShows(ctx context.Context, runID string, shows []model.ShowRecord) error
	ListShows(ctx context.Context, runID string, filter ShowFilter) ([]model.ShowRecord, error)

	// Browser sessions, stored as opaque cookie JSON per site.
	GetSessionCookies(ctx context.Context, site string) ([]byte, error)
	SetSessionCookies(ctx context.Context, site string, cookies []byte) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
