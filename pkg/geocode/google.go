package geocode

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// googlePayload is the slice of the Google Geocoding response we read.
type googlePayload struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
}

// geocodeGoogle resolves an address through the Google Geocoding API.
func (g *geocoder) geocodeGoogle(ctx context.Context, addr AddressInput) (*Result, error) {
	if g.googleKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	q := url.Values{
		"address": {oneLine(addr)},
		"key":     {g.googleKey},
	}
	var payload googlePayload
	if err := g.getJSON(ctx, googleEndpoint, q, &payload); err != nil {
		return nil, eris.Wrap(err, "geocode: google")
	}

	if payload.Status != "OK" || len(payload.Results) == 0 {
		return &Result{Source: "google"}, nil
	}

	geo := payload.Results[0].Geometry
	return &Result{
		Latitude:  geo.Location.Lat,
		Longitude: geo.Location.Lng,
		Source:    "google",
		Quality:   qualityFor(geo.LocationType),
		Matched:   true,
	}, nil
}

// qualityFor maps Google's location_type onto the quality taxonomy.
func qualityFor(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
