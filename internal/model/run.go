package model

import "time"

// RunStatus tracks a pipeline run through its phases.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusScraping    RunStatus = "scraping"
	RunStatusExtracting  RunStatus = "extracting"
	RunStatusReconciling RunStatus = "reconciling"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Run is the persisted header for one pipeline execution.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Status     RunStatus `json:"status"`
	Targets    int       `json:"targets"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Conflicted int       `json:"conflicted"`
}

// RunResult bundles the reconciled output of a run.
type RunResult struct {
	Shows   []ShowRecord   `json:"shows"`
	DJs     []DJRecord     `json:"djs"`
	Vendors []VendorRecord `json:"vendors"`
}

// Tally recomputes the run's outcome counters from its records.
func (r *Run) Tally(shows []ShowRecord) {
	r.Succeeded, r.Failed, r.Skipped, r.Conflicted = 0, 0, 0, 0
	for _, s := range shows {
		switch s.Status {
		case StatusError:
			r.Failed++
		case StatusSkipped:
			r.Skipped++
		case StatusConflict:
			r.Conflicted++
		default:
			r.Succeeded++
		}
	}
}
