// Package progress carries typed pipeline events to whoever is watching a
// run: the CLI spinner, the serve endpoint, or nobody. Publishing never
// blocks the pipeline; a slow consumer loses events, not throughput.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Kind tags an event so consumers can switch without string matching.
type Kind string

const (
	// KindPhase marks a pipeline phase transition.
	KindPhase Kind = "phase"
	// KindItem reports per-item progress within a phase.
	KindItem Kind = "item"
	// KindWarning is a non-fatal condition worth surfacing.
	KindWarning Kind = "warning"
	// KindCredentialsNeeded signals that a login wall is waiting for
	// interactive credentials.
	KindCredentialsNeeded Kind = "credentials_needed"
)

// Event is one progress update. Fields beyond Kind are populated per kind:
// Phase for KindPhase, Current/Total for KindItem, Message for warnings.
type Event struct {
	Kind    Kind
	RunID   string
	Phase   string
	Message string
	Current int
	Total   int
	At      time.Time
}

// Reporter is the write side of progress. Implementations must not block.
type Reporter interface {
	Publish(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Bus is a single-consumer event channel with drop-on-full semantics.
type Bus struct {
	ch      chan Event
	dropped atomic.Int64

	closeOnce sync.Once
}

// NewBus creates a Bus buffering up to size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 64
	}
	return &Bus{ch: make(chan Event, size)}
}

// Publish enqueues the event, stamping At if unset. When the buffer is
// full the event is dropped and counted; the pipeline never waits on a
// consumer.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case b.ch <- ev:
	default:
		if n := b.dropped.Add(1); n == 1 {
			zap.L().Debug("progress: consumer falling behind, dropping events")
		}
	}
}

// Events returns the receive side. It is closed by Close.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Dropped reports how many events were discarded because the buffer was
// full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes the event channel. Publish must not be called after Close.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.ch) })
}
