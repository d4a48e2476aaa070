package model

import "strings"

// RecordStatus classifies the outcome of reconciliation for one record.
// Evaluated in priority order: error > skipped > time_fixed/geo_fixed >
// conflict > validated.
type RecordStatus string

const (
	StatusError     RecordStatus = "error"
	StatusSkipped   RecordStatus = "skipped"
	StatusTimeFixed RecordStatus = "time_fixed"
	StatusGeoFixed  RecordStatus = "geo_fixed"
	StatusConflict  RecordStatus = "conflict"
	StatusValidated RecordStatus = "validated"
)

// statusRank orders statuses by priority; higher wins when a record
// accumulates multiple classifications.
var statusRank = map[RecordStatus]int{
	StatusValidated: 0,
	StatusConflict:  1,
	StatusGeoFixed:  2,
	StatusTimeFixed: 2,
	StatusError:     4,
	StatusSkipped:   3,
}

// Escalate returns the higher-priority of two statuses.
func Escalate(current, proposed RecordStatus) RecordStatus {
	if statusRank[proposed] > statusRank[current] {
		return proposed
	}
	return current
}

// ShowFields is the all-optional payload decoded from a single model
// response. Nil pointers mean the model returned null or omitted the field.
type ShowFields struct {
	Venue        *string  `json:"venue"`
	Address      *string  `json:"address"`
	City         *string  `json:"city"`
	State        *string  `json:"state"`
	Zip          *string  `json:"zip"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	Day          *string  `json:"day"`
	StartTime    *string  `json:"start_time"`
	EndTime      *string  `json:"end_time"`
	DJName       *string  `json:"dj_name"`
	VenuePhone   *string  `json:"venue_phone"`
	VenueWebsite *string  `json:"venue_website"`
}

// GeoFill is one geo-completion suggestion and the model's confidence in
// it. Low-confidence fills are discarded whole rather than half-applied.
type GeoFill struct {
	Fields     ShowFields
	Confidence float64
}

// Conflict records a suggested correction that was not auto-applied.
type Conflict struct {
	Field     string  `json:"field"`
	Current   string  `json:"current"`
	Suggested string  `json:"suggested"`
	Reason    string  `json:"reason"`
	DistanceM float64 `json:"distance_m,omitempty"`
}

// ShowRecord is a reconciled karaoke show. It is the unit handed to the
// persistence/review collaborator: provenance (SourceURLs), Confidence,
// Status and Conflicts travel with it so review never needs a re-run.
type ShowRecord struct {
	Venue        string       `json:"venue"`
	Address      string       `json:"address"`
	City         string       `json:"city"`
	State        string       `json:"state"`
	Zip          string       `json:"zip"`
	Lat          float64      `json:"lat"`
	Lng          float64      `json:"lng"`
	Day          string       `json:"day"`
	StartTime    string       `json:"start_time"`
	EndTime      string       `json:"end_time"`
	DJName       string       `json:"dj_name"`
	VenuePhone   string       `json:"venue_phone"`
	VenueWebsite string       `json:"venue_website"`
	Confidence   float64      `json:"confidence"`
	Status       RecordStatus `json:"status"`
	SourceURLs   []string     `json:"source_urls"`
	Conflicts    []Conflict   `json:"conflicts,omitempty"`
}

// GeoComplete reports whether the record carries a full geographic fix.
func (s *ShowRecord) GeoComplete() bool {
	return s.Venue != "" && s.City != "" && s.State != "" && s.Zip != "" &&
		s.Lat != 0 && s.Lng != 0
}

// HasSource reports whether url is already recorded as provenance.
func (s *ShowRecord) HasSource(url string) bool {
	for _, u := range s.SourceURLs {
		if u == url {
			return true
		}
	}
	return false
}

// AddSource appends url to SourceURLs if not already present.
func (s *ShowRecord) AddSource(url string) {
	if url == "" || s.HasSource(url) {
		return
	}
	s.SourceURLs = append(s.SourceURLs, url)
}

// DJRecord is a reconciled karaoke host.
type DJRecord struct {
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases,omitempty"`
	Confidence float64  `json:"confidence"`
	Context    string   `json:"context,omitempty"`
}

// VendorRecord is a reconciled karaoke vendor/company.
type VendorRecord struct {
	Name        string  `json:"name"`
	Website     string  `json:"website,omitempty"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// daysOfWeek is the canonical day set; model output is normalized against
// it, anything else passes through as free text.
var daysOfWeek = map[string]string{
	"monday": "Monday", "mon": "Monday",
	"tuesday": "Tuesday", "tue": "Tuesday", "tues": "Tuesday",
	"wednesday": "Wednesday", "wed": "Wednesday",
	"thursday": "Thursday", "thu": "Thursday", "thur": "Thursday", "thurs": "Thursday",
	"friday": "Friday", "fri": "Friday",
	"saturday": "Saturday", "sat": "Saturday",
	"sunday": "Sunday", "sun": "Sunday",
}

// NormalizeDay maps a day string onto the canonical weekday set. Unknown
// values are returned trimmed but otherwise untouched.
func NormalizeDay(day string) string {
	trimmed := strings.TrimSpace(day)
	if canonical, ok := daysOfWeek[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}
