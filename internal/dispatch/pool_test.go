package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showscout/scout-cli/internal/model"
)

func venueResult(name string) model.RawExtractionResult {
	return model.RawExtractionResult{
		Success: true,
		Show:    &model.ShowFields{Venue: &name},
	}
}

func TestDispatch_OneResultPerTarget(t *testing.T) {
	worker := WorkerFunc(func(_ context.Context, job model.ExtractionJob) model.RawExtractionResult {
		return venueResult(fmt.Sprintf("venue-%d", job.Index))
	})

	pool := NewPool(worker, WithConcurrency(3), WithBatchDelay(0))

	targets := make([]model.ExtractionTarget, 8)
	for i := range targets {
		targets[i].SourceURL = fmt.Sprintf("https://example.com/%d", i)
	}

	results, err := pool.Dispatch(context.Background(), targets, model.PromptShowText)
	require.NoError(t, err)
	require.Len(t, results, 8)

	for i, r := range results {
		assert.Equal(t, i, r.JobIndex)
		assert.True(t, r.Success)
		assert.Equal(t, fmt.Sprintf("venue-%d", i), *r.Show.Venue)
		assert.Equal(t, fmt.Sprintf("https://example.com/%d", i), r.SourceURL)
	}
}

func TestRun_ConcurrencyNeverExceedsCap(t *testing.T) {
	var current, peak atomic.Int64
	var mu sync.Mutex

	worker := WorkerFunc(func(_ context.Context, _ model.ExtractionJob) model.RawExtractionResult {
		n := current.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return model.RawExtractionResult{Success: true}
	})

	pool := NewPool(worker, WithConcurrency(3), WithBatchDelay(0))

	jobs := make([]model.ExtractionJob, 10)
	for i := range jobs {
		jobs[i].Index = i
	}

	_, err := pool.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestRun_TimeoutSynthesizesResult(t *testing.T) {
	worker := WorkerFunc(func(ctx context.Context, job model.ExtractionJob) model.RawExtractionResult {
		if job.Index == 1 {
			<-ctx.Done() // hang until the pool gives up
			time.Sleep(50 * time.Millisecond)
		}
		return venueResult("ok")
	})

	pool := NewPool(worker,
		WithConcurrency(3),
		WithBatchDelay(0),
		WithJobTimeout(20*time.Millisecond),
	)

	jobs := make([]model.ExtractionJob, 3)
	for i := range jobs {
		jobs[i].Index = i
		jobs[i].Target.SourceURL = fmt.Sprintf("u%d", i)
	}

	results, err := pool.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, model.ErrTimeout, results[1].ErrorKind)
	assert.Equal(t, "u1", results[1].SourceURL)
	assert.True(t, results[2].Success)
}

func TestRun_PanicIsolated(t *testing.T) {
	worker := WorkerFunc(func(_ context.Context, job model.ExtractionJob) model.RawExtractionResult {
		if job.Index == 0 {
			panic("worker exploded")
		}
		return venueResult("ok")
	})

	pool := NewPool(worker, WithConcurrency(2), WithBatchDelay(0))

	jobs := make([]model.ExtractionJob, 2)
	for i := range jobs {
		jobs[i].Index = i
	}

	results, err := pool.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].ErrorMsg, "panic")
	assert.True(t, results[1].Success)
}

func TestRun_BatchDelayBetweenBatches(t *testing.T) {
	var timestamps []time.Time
	var mu sync.Mutex

	worker := WorkerFunc(func(_ context.Context, _ model.ExtractionJob) model.RawExtractionResult {
		mu.Lock()
		timestamps = append(timestamps, time.Now())
		mu.Unlock()
		return model.RawExtractionResult{Success: true}
	})

	pool := NewPool(worker,
		WithConcurrency(2),
		WithBatchDelay(30*time.Millisecond),
	)

	jobs := make([]model.ExtractionJob, 4)
	for i := range jobs {
		jobs[i].Index = i
	}

	start := time.Now()
	_, err := pool.Run(context.Background(), jobs)
	require.NoError(t, err)

	// Two batches with one delay in between.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	mu.Lock()
	assert.Len(t, timestamps, 4)
	mu.Unlock()
}

func TestRun_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int64
	worker := WorkerFunc(func(_ context.Context, _ model.ExtractionJob) model.RawExtractionResult {
		calls.Add(1)
		cancel() // cancel during the first batch
		return model.RawExtractionResult{Success: true}
	})

	pool := NewPool(worker, WithConcurrency(1), WithBatchDelay(0))

	jobs := make([]model.ExtractionJob, 5)
	for i := range jobs {
		jobs[i].Index = i
	}

	results, err := pool.Run(ctx, jobs)
	require.Error(t, err)
	assert.Less(t, len(results), 5)
	assert.Equal(t, int64(1), calls.Load())
}

func TestRun_Empty(t *testing.T) {
	pool := NewPool(WorkerFunc(func(_ context.Context, _ model.ExtractionJob) model.RawExtractionResult {
		t.Fatal("worker should not run")
		return model.RawExtractionResult{}
	}))

	results, err := pool.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestDispatch_AssignsJobIDs(t *testing.T) {
	seen := make(map[string]bool)
	var mu sync.Mutex

	worker := WorkerFunc(func(_ context.Context, job model.ExtractionJob) model.RawExtractionResult {
		mu.Lock()
		seen[job.ID] = true
		mu.Unlock()
		return model.RawExtractionResult{Success: true}
	})

	pool := NewPool(worker, WithBatchDelay(0))

	targets := make([]model.ExtractionTarget, 4)
	_, err := pool.Dispatch(context.Background(), targets, model.PromptShowImage)
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, seen, 4)
	mu.Unlock()
}
