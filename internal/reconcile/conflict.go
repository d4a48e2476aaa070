package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/pkg/geocode"
)

// Default distance thresholds. Adjacency decides whether two coordinate
// pairs describe the same building; the general threshold decides whether
// extracted coordinates contradict the geocoding oracle.
const (
	DefaultAdjacencyM = 50.0
	DefaultGeneralM   = 804.67 // 0.5 mi
)

// qualityConfidence maps oracle match quality onto a confidence for the
// auto-apply gate.
var qualityConfidence = map[string]float64{
	"rooftop":     0.95,
	"range":       0.85,
	"centroid":    0.7,
	"approximate": 0.5,
}

// VerifyCoordinates checks one record's coordinates against the geocoding
// oracle and mutates the record in place:
//   - no coordinates, oracle match: coordinates filled, status geo_fixed;
//   - coordinates within the general threshold: status validated;
//   - coordinates past the threshold: the oracle wins if its match quality
//     clears the confidence gate, otherwise the correction is recorded as a
//     conflict for review.
//
// Records without enough address to geocode are left untouched.
func VerifyCoordinates(ctx context.Context, geocoder geocode.Client, rec *model.ShowRecord, generalM, gate float64) error {
	if rec.Address == "" && (rec.City == "" || rec.State == "") {
		return nil
	}

	oracle, err := geocoder.Geocode(ctx, geocode.AddressInput{
		Street:  rec.Address,
		City:    rec.City,
		State:   rec.State,
		ZipCode: rec.Zip,
	})
	if err != nil {
		return err
	}
	if !oracle.Matched {
		return nil
	}

	hasCoords := rec.Lat != 0 || rec.Lng != 0
	if !hasCoords {
		rec.Lat = oracle.Latitude
		rec.Lng = oracle.Longitude
		rec.Status = model.Escalate(rec.Status, model.StatusGeoFixed)
		return nil
	}

	d := haversineM(rec.Lat, rec.Lng, oracle.Latitude, oracle.Longitude)
	if d <= generalM {
		rec.Status = model.Escalate(rec.Status, model.StatusValidated)
		return nil
	}

	fixConfidence := qualityConfidence[oracle.Quality]
	if fixConfidence >= gate {
		zap.L().Info("reconcile: oracle override",
			zap.String("venue", rec.Venue),
			zap.Float64("distance_m", d),
			zap.String("quality", oracle.Quality),
		)
		rec.Conflicts = append(rec.Conflicts, model.Conflict{
			Field:     "lat/lng",
			Current:   formatCoords(rec.Lat, rec.Lng),
			Suggested: formatCoords(oracle.Latitude, oracle.Longitude),
			Reason:    "geocoder disagrees, correction auto-applied",
			DistanceM: d,
		})
		rec.Lat = oracle.Latitude
		rec.Lng = oracle.Longitude
		rec.Status = model.Escalate(rec.Status, model.StatusGeoFixed)
		return nil
	}

	rec.Conflicts = append(rec.Conflicts, model.Conflict{
		Field:     "lat/lng",
		Current:   formatCoords(rec.Lat, rec.Lng),
		Suggested: formatCoords(oracle.Latitude, oracle.Longitude),
		Reason:    fmt.Sprintf("geocoder disagrees (%s match below gate)", oracle.Quality),
		DistanceM: d,
	})
	rec.Status = model.Escalate(rec.Status, model.StatusConflict)
	return nil
}

func formatCoords(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}
