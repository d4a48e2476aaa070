// Package dispatch runs extraction jobs through a bounded worker pool.
// Jobs execute in sequential batches of at most the concurrency cap, with a
// fixed delay between batches so upstream services see a steady request
// rate rather than a thundering herd.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/showscout/scout-cli/internal/model"
)

const (
	defaultConcurrency = 3
	defaultJobTimeout  = 30 * time.Second
	defaultBatchDelay  = 2 * time.Second
)

// Worker executes one job and returns its result. Implementations must
// fold their own failures into the result; the pool only synthesizes
// results for timeouts and panics.
type Worker interface {
	Extract(ctx context.Context, job model.ExtractionJob) model.RawExtractionResult
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, job model.ExtractionJob) model.RawExtractionResult

// Extract implements Worker.
func (f WorkerFunc) Extract(ctx context.Context, job model.ExtractionJob) model.RawExtractionResult {
	return f(ctx, job)
}

// Pool is a bounded dispatcher over a Worker.
type Pool struct {
	worker      Worker
	concurrency int
	jobTimeout  time.Duration
	batchDelay  time.Duration
}

// PoolOption configures the Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the batch size / concurrency cap.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithJobTimeout sets the per-job deadline.
func WithJobTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.jobTimeout = d
		}
	}
}

// WithBatchDelay sets the pause between batches. Zero disables it.
func WithBatchDelay(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d >= 0 {
			p.batchDelay = d
		}
	}
}

// NewPool creates a dispatcher over the given worker.
func NewPool(worker Worker, opts ...PoolOption) *Pool {
	p := &Pool{
		worker:      worker,
		concurrency: defaultConcurrency,
		jobTimeout:  defaultJobTimeout,
		batchDelay:  defaultBatchDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dispatch builds jobs from targets and runs them all. The returned slice
// always has exactly one result per target, ordered by job index, whatever
// happened to the individual jobs. Only context cancellation aborts early;
// the results collected so far are returned alongside the error.
func (p *Pool) Dispatch(ctx context.Context, targets []model.ExtractionTarget, prompt model.PromptKind) ([]model.RawExtractionResult, error) {
	jobs := make([]model.ExtractionJob, len(targets))
	for i, target := range targets {
		jobs[i] = model.ExtractionJob{
			ID:     uuid.NewString(),
			Index:  i,
			Target: target,
			Prompt: prompt,
		}
	}
	return p.Run(ctx, jobs)
}

// Run executes prepared jobs in batches of at most the concurrency cap.
func (p *Pool) Run(ctx context.Context, jobs []model.ExtractionJob) ([]model.RawExtractionResult, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	results := make([]model.RawExtractionResult, 0, len(jobs))

	for start := 0; start < len(jobs); start += p.concurrency {
		if start > 0 && p.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return sortResults(results), ctx.Err()
			case <-time.After(p.batchDelay):
			}
		}

		end := min(start+p.concurrency, len(jobs))
		batch := jobs[start:end]

		zap.L().Debug("dispatch: running batch",
			zap.Int("from", start),
			zap.Int("size", len(batch)),
			zap.Int("total", len(jobs)),
		)

		batchResults := make([]model.RawExtractionResult, len(batch))
		eg, gCtx := errgroup.WithContext(ctx)
		for i, job := range batch {
			i, job := i, job
			eg.Go(func() error {
				batchResults[i] = p.runOne(gCtx, job)
				return nil
			})
		}
		_ = eg.Wait()
		results = append(results, batchResults...)

		if ctx.Err() != nil {
			return sortResults(results), ctx.Err()
		}
	}

	return sortResults(results), nil
}

// runOne executes a single job under the per-job deadline with panic
// isolation. A worker that panics or overruns produces a synthesized
// error result instead of taking down the batch.
func (p *Pool) runOne(ctx context.Context, job model.ExtractionJob) (result model.RawExtractionResult) {
	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("dispatch: worker panic",
				zap.String("job_id", job.ID),
				zap.Int("index", job.Index),
				zap.Any("panic", r),
			)
			result = model.RawExtractionResult{
				JobIndex:  job.Index,
				SourceURL: job.Target.SourceURL,
				ErrorKind: model.ErrTransient,
				ErrorMsg:  fmt.Sprintf("dispatch: worker panic: %v", r),
			}
		}
	}()

	done := make(chan model.RawExtractionResult, 1)
	panicked := make(chan any, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicked <- r
			}
		}()
		done <- p.worker.Extract(jobCtx, job)
	}()

	select {
	case result = <-done:
		result.JobIndex = job.Index
		if result.SourceURL == "" {
			result.SourceURL = job.Target.SourceURL
		}
		return result
	case r := <-panicked:
		panic(r)
	case <-jobCtx.Done():
		zap.L().Warn("dispatch: job timed out",
			zap.String("job_id", job.ID),
			zap.Int("index", job.Index),
			zap.Duration("timeout", p.jobTimeout),
		)
		return model.RawExtractionResult{
			JobIndex:  job.Index,
			SourceURL: job.Target.SourceURL,
			ErrorKind: model.ErrTimeout,
			ErrorMsg:  fmt.Sprintf("dispatch: job exceeded %s", p.jobTimeout),
		}
	}
}

func sortResults(results []model.RawExtractionResult) []model.RawExtractionResult {
	sort.Slice(results, func(i, j int) bool {
		return results[i].JobIndex < results[j].JobIndex
	})
	return results
}
