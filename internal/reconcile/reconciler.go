// Package reconcile turns raw per-job extraction results into a clean,
// deduplicated record set: merge duplicates, normalize times, complete
// missing geography through the model, and verify coordinates against the
// geocoding oracle.
package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/pkg/geocode"
)

// Config tunes the reconciliation pass.
type Config struct {
	// AdjacencyM is the distance under which two coordinate pairs count
	// as the same building.
	AdjacencyM float64

	// GeneralM is the distance past which extracted coordinates
	// contradict the geocoding oracle.
	GeneralM float64

	// ConfidenceGate is the minimum confidence for auto-applying a
	// correction; suggestions below it become conflicts.
	ConfidenceGate float64

	// SkipOracle disables geocoder verification (offline runs).
	SkipOracle bool
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		AdjacencyM:     DefaultAdjacencyM,
		GeneralM:       DefaultGeneralM,
		ConfidenceGate: 0.85,
	}
}

// Reconciler runs the full reconciliation pass.
type Reconciler struct {
	completer GeoCompleter
	geocoder  geocode.Client
	cfg       Config
}

// New creates a Reconciler. completer and geocoder may be nil, which
// disables the geo-completion and oracle passes respectively.
func New(completer GeoCompleter, geocoder geocode.Client, cfg Config) *Reconciler {
	if cfg.AdjacencyM <= 0 {
		cfg.AdjacencyM = DefaultAdjacencyM
	}
	if cfg.GeneralM <= 0 {
		cfg.GeneralM = DefaultGeneralM
	}
	if cfg.ConfidenceGate <= 0 {
		cfg.ConfidenceGate = 0.85
	}
	return &Reconciler{completer: completer, geocoder: geocoder, cfg: cfg}
}

// Stats summarizes a reconciliation pass.
type Stats struct {
	RawResults  int
	FailedJobs  int
	SkippedRaw  int
	UniqueShows int
}

// Reconcile processes raw extraction results end to end. Failed jobs are
// counted, not resurrected; everything else flows through dedupe, time
// normalization, geo completion and oracle verification in that order.
func (r *Reconciler) Reconcile(ctx context.Context, results []model.RawExtractionResult) (model.RunResult, Stats, error) {
	stats := Stats{RawResults: len(results)}
	for _, res := range results {
		if !res.Success {
			stats.FailedJobs++
		}
	}

	shows, skipped := Dedupe(results, r.cfg.AdjacencyM)
	stats.SkippedRaw = skipped

	for i := range shows {
		NormalizeShowTimes(&shows[i])
	}

	if r.completer != nil {
		shows = CompleteGeo(ctx, r.completer, shows, r.cfg.ConfidenceGate)
	}

	if r.geocoder != nil && !r.cfg.SkipOracle {
		for i := range shows {
			if ctx.Err() != nil {
				return model.RunResult{}, stats, ctx.Err()
			}
			if err := VerifyCoordinates(ctx, r.geocoder, &shows[i], r.cfg.GeneralM, r.cfg.ConfidenceGate); err != nil {
				zap.L().Warn("reconcile: oracle lookup failed",
					zap.String("venue", shows[i].Venue),
					zap.Error(err),
				)
				shows[i].Status = model.Escalate(shows[i].Status, model.StatusSkipped)
			}
		}
	}

	stats.UniqueShows = len(shows)

	zap.L().Info("reconcile: pass complete",
		zap.Int("raw", stats.RawResults),
		zap.Int("failed_jobs", stats.FailedJobs),
		zap.Int("unique_shows", stats.UniqueShows),
	)

	return model.RunResult{
		Shows:   shows,
		DJs:     DedupeDJs(results),
		Vendors: DedupeVendors(results),
	}, stats, nil
}
