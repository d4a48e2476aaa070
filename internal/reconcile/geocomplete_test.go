package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showscout/scout-cli/internal/model"
)

// fakeCompleter returns scripted fills keyed by venue name.
type fakeCompleter struct {
	fills map[string]model.GeoFill
	err   error
	calls [][]string // venue names per call, to assert chunking
}

func (f *fakeCompleter) GeoComplete(_ context.Context, records []model.ShowRecord) ([]model.GeoFill, error) {
	var names []string
	for _, r := range records {
		names = append(names, r.Venue)
	}
	f.calls = append(f.calls, names)

	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.GeoFill, len(records))
	for i, r := range records {
		out[i] = f.fills[r.Venue]
	}
	return out, nil
}

func TestCompleteGeo_FillsOnlyMissing(t *testing.T) {
	// Scenario: a record missing only state gets it filled; everything
	// originally present stays untouched.
	completer := &fakeCompleter{fills: map[string]model.GeoFill{
		"Joe's Bar": {
			Fields: model.ShowFields{
				State: ptr("OH"),
				City:  ptr("WRONG CITY"), // must not overwrite
			},
			Confidence: 0.95,
		},
	}}

	records := []model.ShowRecord{{
		Venue: "Joe's Bar", Day: "Monday", StartTime: "20:00",
		City: "Columbus",
	}}

	out := CompleteGeo(context.Background(), completer, records, 0.9)
	require.Len(t, out, 1)
	assert.Equal(t, "OH", out[0].State)
	assert.Equal(t, "Columbus", out[0].City)
	assert.Equal(t, model.StatusGeoFixed, out[0].Status)
}

func TestCompleteGeo_HighConfidenceCoordinatesApplied(t *testing.T) {
	// Missing coordinates plus a confident completion → geo_fixed.
	completer := &fakeCompleter{fills: map[string]model.GeoFill{
		"Joe's Bar": {
			Fields:     model.ShowFields{Lat: ptr(39.9612), Lng: ptr(-82.9988)},
			Confidence: 0.92,
		},
	}}

	records := []model.ShowRecord{{Venue: "Joe's Bar", City: "Columbus", State: "OH", Zip: "43215"}}

	out := CompleteGeo(context.Background(), completer, records, 0.9)
	assert.Equal(t, 39.9612, out[0].Lat)
	assert.Equal(t, -82.9988, out[0].Lng)
	assert.Equal(t, model.StatusGeoFixed, out[0].Status)
}

func TestCompleteGeo_LowConfidenceDiscardedWhole(t *testing.T) {
	// A 0.3-confidence fill modifies nothing and marks the record skipped.
	completer := &fakeCompleter{fills: map[string]model.GeoFill{
		"Joe's Bar": {
			Fields:     model.ShowFields{City: ptr("Columbus"), State: ptr("OH"), Lat: ptr(39.9), Lng: ptr(-82.9)},
			Confidence: 0.3,
		},
	}}

	records := []model.ShowRecord{{Venue: "Joe's Bar"}}

	out := CompleteGeo(context.Background(), completer, records, 0.9)
	assert.Empty(t, out[0].City)
	assert.Zero(t, out[0].Lat)
	assert.Equal(t, model.StatusSkipped, out[0].Status)
}

func TestCompleteGeo_CompleteRecordsNotResubmitted(t *testing.T) {
	completer := &fakeCompleter{fills: map[string]model.GeoFill{}}

	records := []model.ShowRecord{
		{Venue: "Complete", City: "Columbus", State: "OH", Zip: "43215", Lat: 39.9, Lng: -82.9},
		{Venue: "Incomplete"},
	}

	CompleteGeo(context.Background(), completer, records, 0.9)
	require.Len(t, completer.calls, 1)
	assert.Equal(t, []string{"Incomplete"}, completer.calls[0])
}

func TestCompleteGeo_ChunksOfFive(t *testing.T) {
	completer := &fakeCompleter{fills: map[string]model.GeoFill{}}

	records := make([]model.ShowRecord, 12)
	for i := range records {
		records[i].Venue = string(rune('A' + i))
	}

	CompleteGeo(context.Background(), completer, records, 0.9)
	require.Len(t, completer.calls, 3)
	assert.Len(t, completer.calls[0], 5)
	assert.Len(t, completer.calls[1], 5)
	assert.Len(t, completer.calls[2], 2)
}

func TestCompleteGeo_ChunkFailureMarksSkipped(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("model unavailable")}

	records := []model.ShowRecord{{Venue: "A"}, {Venue: "B"}}

	out := CompleteGeo(context.Background(), completer, records, 0.9)
	assert.Equal(t, model.StatusSkipped, out[0].Status)
	assert.Equal(t, model.StatusSkipped, out[1].Status)
}

// fakeBulkCompleter answers one all-at-once submission.
type fakeBulkCompleter struct {
	fakeCompleter
}

func (f *fakeBulkCompleter) BulkGeoComplete(ctx context.Context, records []model.ShowRecord) ([]model.GeoFill, error) {
	return f.GeoComplete(ctx, records)
}

func TestCompleteGeoBulk_SingleSubmission(t *testing.T) {
	completer := &fakeBulkCompleter{fakeCompleter{fills: map[string]model.GeoFill{
		"A": {Fields: model.ShowFields{State: ptr("OH")}, Confidence: 0.95},
	}}}

	records := make([]model.ShowRecord, 12)
	for i := range records {
		records[i].Venue = string(rune('A' + i))
	}

	out := CompleteGeoBulk(context.Background(), completer, records, 0.9)
	require.Len(t, completer.calls, 1)
	assert.Len(t, completer.calls[0], 12)
	assert.Equal(t, "OH", out[0].State)
	assert.Equal(t, model.StatusGeoFixed, out[0].Status)
}

func TestCompleteGeoBulk_FailureMarksSkipped(t *testing.T) {
	completer := &fakeBulkCompleter{fakeCompleter{err: errors.New("batch expired")}}

	records := []model.ShowRecord{{Venue: "A"}, {Venue: "B"}}

	out := CompleteGeoBulk(context.Background(), completer, records, 0.9)
	assert.Equal(t, model.StatusSkipped, out[0].Status)
	assert.Equal(t, model.StatusSkipped, out[1].Status)
}

func TestCompleteGeo_EmptyFillLeavesStatus(t *testing.T) {
	// The model answered but knew nothing: all-null fill, no status change.
	completer := &fakeCompleter{fills: map[string]model.GeoFill{
		"Mystery": {Confidence: 0.1},
	}}

	records := []model.ShowRecord{{Venue: "Mystery"}}

	out := CompleteGeo(context.Background(), completer, records, 0.9)
	assert.Equal(t, model.RecordStatus(""), out[0].Status)
}
