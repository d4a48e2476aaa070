package reconcile

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/showscout/scout-cli/internal/model"
)

var foldCaser = cases.Fold()

// normKey folds case, applies NFKC and collapses whitespace so "Café Bar"
// and "CAFÉ  bar" dedupe together.
func normKey(s string) string {
	folded := foldCaser.String(norm.NFKC.String(strings.TrimSpace(s)))
	return strings.Join(strings.Fields(folded), " ")
}

// dedupKey builds the identity key for a show: venue and day always, start
// time when present, DJ name as the tiebreaker when the time is unknown.
// Two shows at the same venue on the same night with neither a time nor a
// host are indistinguishable and merge.
func dedupKey(f *model.ShowFields) string {
	venue := ""
	if f.Venue != nil {
		venue = *f.Venue
	}
	day := ""
	if f.Day != nil {
		day = *f.Day
	}

	third := ""
	if f.StartTime != nil && strings.TrimSpace(*f.StartTime) != "" {
		third = *f.StartTime
	} else if f.DJName != nil {
		third = *f.DJName
	}

	return normKey(venue) + "|" + normKey(day) + "|" + normKey(third)
}

// mergeGroup folds a group of raw results for the same show into one
// record: first non-null wins per scalar field, source URLs are unioned,
// confidence is the max of the group. When two members carry coordinates
// that disagree by more than adjacencyM, the merged record keeps the first
// pair and records a conflict.
func mergeGroup(group []model.RawExtractionResult, adjacencyM float64) model.ShowRecord {
	var rec model.ShowRecord

	for _, r := range group {
		f := r.Show

		setString(&rec.Venue, f.Venue)
		setString(&rec.Address, f.Address)
		setString(&rec.City, f.City)
		setString(&rec.State, f.State)
		setString(&rec.Zip, f.Zip)
		setString(&rec.Day, f.Day)
		setString(&rec.StartTime, f.StartTime)
		setString(&rec.EndTime, f.EndTime)
		setString(&rec.DJName, f.DJName)
		setString(&rec.VenuePhone, f.VenuePhone)
		setString(&rec.VenueWebsite, f.VenueWebsite)

		if f.Lat != nil && f.Lng != nil {
			if rec.Lat == 0 && rec.Lng == 0 {
				rec.Lat = *f.Lat
				rec.Lng = *f.Lng
			} else {
				d := haversineM(rec.Lat, rec.Lng, *f.Lat, *f.Lng)
				if d > adjacencyM {
					rec.Conflicts = append(rec.Conflicts, model.Conflict{
						Field:     "lat/lng",
						Current:   formatCoords(rec.Lat, rec.Lng),
						Suggested: formatCoords(*f.Lat, *f.Lng),
						Reason:    "merged sources disagree on location",
						DistanceM: d,
					})
					rec.Status = model.Escalate(rec.Status, model.StatusConflict)
				}
			}
		}

		if r.Confidence > rec.Confidence {
			rec.Confidence = r.Confidence
		}
		rec.AddSource(r.SourceURL)
	}

	rec.Status = model.Escalate(model.StatusValidated, rec.Status)
	return rec
}

// Dedupe groups successful show results by identity key and merges each
// group. Results without a venue cannot be keyed and are dropped with a
// log line; the caller counts them via the skipped return.
func Dedupe(results []model.RawExtractionResult, adjacencyM float64) (records []model.ShowRecord, skipped int) {
	groups := make(map[string][]model.RawExtractionResult)
	var order []string

	for _, r := range results {
		if !r.Success || r.Show == nil {
			continue
		}
		if r.Show.Venue == nil || strings.TrimSpace(*r.Show.Venue) == "" {
			skipped++
			zap.L().Debug("reconcile: result without venue skipped",
				zap.String("source", r.SourceURL),
			)
			continue
		}
		key := dedupKey(r.Show)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	for _, key := range order {
		records = append(records, mergeGroup(groups[key], adjacencyM))
	}

	zap.L().Info("reconcile: dedupe complete",
		zap.Int("raw", len(results)),
		zap.Int("unique", len(records)),
		zap.Int("skipped", skipped),
	)
	return records, skipped
}

// DedupeDJs merges DJ records by folded name, unioning aliases.
func DedupeDJs(results []model.RawExtractionResult) []model.DJRecord {
	byName := make(map[string]*model.DJRecord)
	var order []string

	for _, r := range results {
		if r.DJ == nil || strings.TrimSpace(r.DJ.Name) == "" {
			continue
		}
		key := normKey(r.DJ.Name)
		existing, ok := byName[key]
		if !ok {
			dj := *r.DJ
			byName[key] = &dj
			order = append(order, key)
			continue
		}
		if r.DJ.Confidence > existing.Confidence {
			existing.Confidence = r.DJ.Confidence
		}
		if r.DJ.Name != existing.Name && !containsFold(existing.Aliases, r.DJ.Name) {
			existing.Aliases = append(existing.Aliases, r.DJ.Name)
		}
	}

	out := make([]model.DJRecord, 0, len(order))
	for _, key := range order {
		out = append(out, *byName[key])
	}
	return out
}

// DedupeVendors merges vendor records by folded name.
func DedupeVendors(results []model.RawExtractionResult) []model.VendorRecord {
	byName := make(map[string]*model.VendorRecord)
	var order []string

	for _, r := range results {
		if r.Vendor == nil || strings.TrimSpace(r.Vendor.Name) == "" {
			continue
		}
		key := normKey(r.Vendor.Name)
		existing, ok := byName[key]
		if !ok {
			v := *r.Vendor
			byName[key] = &v
			order = append(order, key)
			continue
		}
		if r.Vendor.Confidence > existing.Confidence {
			existing.Confidence = r.Vendor.Confidence
		}
		if existing.Website == "" {
			existing.Website = r.Vendor.Website
		}
	}

	out := make([]model.VendorRecord, 0, len(order))
	for _, key := range order {
		out = append(out, *byName[key])
	}
	return out
}

func setString(dst *string, src *string) {
	if *dst == "" && src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func containsFold(list []string, s string) bool {
	key := normKey(s)
	for _, item := range list {
		if normKey(item) == key {
			return true
		}
	}
	return false
}
