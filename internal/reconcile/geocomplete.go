package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/model"
)

// geoChunkSize matches the extraction engine's per-call record cap.
const geoChunkSize = 5

// GeoCompleter is the slice of the extraction engine the reconciler needs.
type GeoCompleter interface {
	GeoComplete(ctx context.Context, records []model.ShowRecord) ([]model.GeoFill, error)
}

// CompleteGeo fills missing geographic fields on the incomplete records.
// Geo-complete records are never re-submitted; incomplete ones go through
// the completer in chunks of geoChunkSize, and returned fields only land
// in empty slots. Fills below the confidence gate are discarded whole and
// the record is marked skipped; a chunk failure likewise marks its records
// skipped rather than failing the pass.
func CompleteGeo(ctx context.Context, completer GeoCompleter, records []model.ShowRecord, gate float64) []model.ShowRecord {
	var incompleteIdx []int
	for i := range records {
		if !records[i].GeoComplete() {
			incompleteIdx = append(incompleteIdx, i)
		}
	}
	if len(incompleteIdx) == 0 {
		return records
	}

	zap.L().Info("reconcile: geo completion",
		zap.Int("total", len(records)),
		zap.Int("incomplete", len(incompleteIdx)),
	)

	for start := 0; start < len(incompleteIdx); start += geoChunkSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+geoChunkSize, len(incompleteIdx))
		chunkIdx := incompleteIdx[start:end]

		chunk := make([]model.ShowRecord, len(chunkIdx))
		for i, idx := range chunkIdx {
			chunk[i] = records[idx]
		}

		fills, err := completer.GeoComplete(ctx, chunk)
		if err != nil {
			zap.L().Warn("reconcile: geo chunk failed",
				zap.Int("size", len(chunk)),
				zap.Error(err),
			)
			for _, idx := range chunkIdx {
				records[idx].Status = model.Escalate(records[idx].Status, model.StatusSkipped)
			}
			continue
		}

		applyFills(records, chunkIdx, fills, gate)
	}

	return records
}

// BulkGeoCompleter resolves all records in one batched submission.
type BulkGeoCompleter interface {
	BulkGeoComplete(ctx context.Context, records []model.ShowRecord) ([]model.GeoFill, error)
}

// CompleteGeoBulk is CompleteGeo's batch-API variant: every incomplete
// record goes out in a single submission, which the completer spreads over
// the message batch API. Suited to offline passes over a stored run, where
// batch latency doesn't matter.
func CompleteGeoBulk(ctx context.Context, completer BulkGeoCompleter, records []model.ShowRecord, gate float64) []model.ShowRecord {
	var incompleteIdx []int
	for i := range records {
		if !records[i].GeoComplete() {
			incompleteIdx = append(incompleteIdx, i)
		}
	}
	if len(incompleteIdx) == 0 {
		return records
	}

	chunk := make([]model.ShowRecord, len(incompleteIdx))
	for i, idx := range incompleteIdx {
		chunk[i] = records[idx]
	}

	fills, err := completer.BulkGeoComplete(ctx, chunk)
	if err != nil {
		zap.L().Warn("reconcile: bulk geo completion failed",
			zap.Int("records", len(chunk)),
			zap.Error(err),
		)
		for _, idx := range incompleteIdx {
			records[idx].Status = model.Escalate(records[idx].Status, model.StatusSkipped)
		}
		return records
	}

	applyFills(records, incompleteIdx, fills, gate)
	return records
}

// applyFills lands fills onto records at the given indexes, gating on
// confidence and escalating statuses.
func applyFills(records []model.ShowRecord, idx []int, fills []model.GeoFill, gate float64) {
	for i, recIdx := range idx {
		if i >= len(fills) {
			break
		}
		fill := fills[i]
		if !hasGeoFields(fill.Fields) {
			continue
		}
		if fill.Confidence < gate {
			records[recIdx].Status = model.Escalate(records[recIdx].Status, model.StatusSkipped)
			zap.L().Debug("reconcile: geo fill below gate",
				zap.String("venue", records[recIdx].Venue),
				zap.Float64("confidence", fill.Confidence),
			)
			continue
		}
		if applyGeoFields(&records[recIdx], fill.Fields) {
			records[recIdx].Status = model.Escalate(records[recIdx].Status, model.StatusGeoFixed)
		}
	}
}

func hasGeoFields(f model.ShowFields) bool {
	return f.Address != nil || f.City != nil || f.State != nil || f.Zip != nil ||
		(f.Lat != nil && f.Lng != nil)
}

// applyGeoFields copies completion fields into a record's empty slots only
// and reports whether anything landed. Existing values are never
// overwritten here; overriding is the conflict pass's job.
func applyGeoFields(rec *model.ShowRecord, f model.ShowFields) bool {
	changed := false

	if rec.Address == "" && f.Address != nil && *f.Address != "" {
		rec.Address = *f.Address
		changed = true
	}
	if rec.City == "" && f.City != nil && *f.City != "" {
		rec.City = *f.City
		changed = true
	}
	if rec.State == "" && f.State != nil && *f.State != "" {
		rec.State = *f.State
		changed = true
	}
	if rec.Zip == "" && f.Zip != nil && *f.Zip != "" {
		rec.Zip = *f.Zip
		changed = true
	}
	if rec.Lat == 0 && rec.Lng == 0 && f.Lat != nil && f.Lng != nil {
		rec.Lat = *f.Lat
		rec.Lng = *f.Lng
		changed = true
	}

	return changed
}
