package geocode

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	censusEndpoint  = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBenchmark = "Public_AR_Current"
)

// censusPayload is the slice of the Census one-line response we read.
// Coordinates come back as x=longitude, y=latitude.
type censusPayload struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// geocodeCensus resolves an address through the Census one-line API.
func (g *geocoder) geocodeCensus(ctx context.Context, addr AddressInput) (*Result, error) {
	line := oneLine(addr)
	if line == "" {
		return &Result{Source: "census"}, nil
	}

	q := url.Values{
		"address":   {line},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}
	var payload censusPayload
	if err := g.getJSON(ctx, censusEndpoint, q, &payload); err != nil {
		return nil, eris.Wrap(err, "geocode: census")
	}

	matches := payload.Result.AddressMatches
	if len(matches) == 0 {
		return &Result{Source: "census"}, nil
	}

	// One-line matches resolve to the parcel.
	return &Result{
		Latitude:  matches[0].Coordinates.Y,
		Longitude: matches[0].Coordinates.X,
		Source:    "census",
		Quality:   "rooftop",
		Matched:   true,
	}, nil
}

// oneLine joins the populated address parts for the one-line endpoints.
func oneLine(addr AddressInput) string {
	var parts []string
	for _, p := range []string{addr.Street, addr.City, addr.State, addr.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
