package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/pkg/geocode"
)

func TestReconcile_EndToEnd(t *testing.T) {
	// Two sources for the same Monday show (one with a flyer time that
	// needs normalizing), one failed job, and a distinct Tuesday show with
	// no address. The completer fills the Monday show's state, and the
	// oracle confirms its coordinates.
	results := []model.RawExtractionResult{
		showResult("https://a.example/1", 0.8, model.ShowFields{
			Venue: ptr("Joe's Bar"), Day: ptr("Monday"), StartTime: ptr("9pm"),
			Address: ptr("1 Main St"), City: ptr("Columbus"),
			Lat: ptr(39.9612), Lng: ptr(-82.9988),
		}),
		showResult("https://b.example/2", 0.9, model.ShowFields{
			Venue: ptr("joe's bar"), Day: ptr("monday"), StartTime: ptr("21:00"),
			Zip: ptr("43215"),
		}),
		showResult("https://c.example/3", 0.7, model.ShowFields{
			Venue: ptr("Hideaway"), Day: ptr("Tuesday"), StartTime: ptr("20:00"),
		}),
		{Success: false, ErrorKind: model.ErrTimeout},
	}

	completer := &fakeCompleter{fills: map[string]model.GeoFill{
		"Joe's Bar": {Fields: model.ShowFields{State: ptr("OH")}, Confidence: 0.95},
	}}
	geocoder := &fakeGeocoder{result: &geocode.Result{
		Latitude: 39.9613, Longitude: -82.9988, Matched: true, Quality: "rooftop",
	}}

	r := New(completer, geocoder, DefaultConfig())
	out, stats, err := r.Reconcile(context.Background(), results)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.RawResults)
	assert.Equal(t, 1, stats.FailedJobs)
	assert.Equal(t, 2, stats.UniqueShows)
	require.Len(t, out.Shows, 2)

	joes := out.Shows[0]
	assert.Equal(t, "Joe's Bar", joes.Venue)
	assert.Equal(t, "21:00", joes.StartTime)
	assert.Equal(t, "OH", joes.State) // completed by the model
	assert.Equal(t, "43215", joes.Zip)
	assert.Len(t, joes.SourceURLs, 2)
	// The "9pm" repair marked it time_fixed first; the equal-rank
	// geo_fixed from the completed state does not displace it.
	assert.Equal(t, model.StatusTimeFixed, joes.Status)

	// Hideaway has no address, so the oracle never sees it; the completer
	// had nothing for it either.
	hideaway := out.Shows[1]
	assert.Equal(t, "Hideaway", hideaway.Venue)
	assert.Equal(t, 1, geocoder.calls)
}

func TestReconcile_SkipOracle(t *testing.T) {
	results := []model.RawExtractionResult{
		showResult("u1", 0.8, model.ShowFields{
			Venue: ptr("Joe's Bar"), Day: ptr("Monday"), StartTime: ptr("20:00"),
			Address: ptr("1 Main St"), City: ptr("Columbus"), State: ptr("OH"),
		}),
	}

	geocoder := &fakeGeocoder{result: &geocode.Result{Matched: true}}
	cfg := DefaultConfig()
	cfg.SkipOracle = true

	r := New(nil, geocoder, cfg)
	out, _, err := r.Reconcile(context.Background(), results)
	require.NoError(t, err)
	require.Len(t, out.Shows, 1)
	assert.Zero(t, geocoder.calls)
}

func TestReconcile_OracleErrorSkipsRecord(t *testing.T) {
	results := []model.RawExtractionResult{
		showResult("u1", 0.8, model.ShowFields{
			Venue: ptr("Joe's Bar"), Day: ptr("Monday"), StartTime: ptr("20:00"),
			Address: ptr("1 Main St"), City: ptr("Columbus"), State: ptr("OH"),
		}),
	}

	geocoder := &fakeGeocoder{err: context.DeadlineExceeded}

	r := New(nil, geocoder, DefaultConfig())
	out, _, err := r.Reconcile(context.Background(), results)
	require.NoError(t, err)
	require.Len(t, out.Shows, 1)
	assert.Equal(t, model.StatusSkipped, out.Shows[0].Status)
}

func TestReconcile_CancelledContext(t *testing.T) {
	results := []model.RawExtractionResult{
		showResult("u1", 0.8, model.ShowFields{
			Venue: ptr("Joe's Bar"), Day: ptr("Monday"), StartTime: ptr("20:00"),
			Address: ptr("1 Main St"), City: ptr("Columbus"), State: ptr("OH"),
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	geocoder := &fakeGeocoder{result: &geocode.Result{Matched: true}}
	r := New(nil, geocoder, DefaultConfig())
	_, _, err := r.Reconcile(ctx, results)
	assert.ErrorIs(t, err, context.Canceled)
}
