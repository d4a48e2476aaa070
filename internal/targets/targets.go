// Package targets loads scrape target lists from command arguments or
// from plain-text, CSV, and XLSX files. Each entry is a URL plus an
// optional kind; when the kind column is absent it is inferred from the
// URL shape.
package targets

import (
	"encoding/csv"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/showscout/scout-cli/internal/model"
)

// Target is one entry of a scrape target list.
type Target struct {
	URL  string
	Kind model.TargetKind
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// InferKind guesses the target kind from the URL shape: group-feed paths
// scroll, image URLs go straight to the vision prompt, everything else is
// a plain page.
func InferKind(rawURL string) model.TargetKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.KindPage
	}

	path := strings.ToLower(u.Path)
	if strings.Contains(path, "/groups/") || strings.Contains(path, "/group/") {
		return model.KindGroupFeed
	}
	if imageExtensions[filepath.Ext(path)] {
		return model.KindPhoto
	}
	return model.KindPage
}

// ParseKind maps a kind column value to a TargetKind. Empty means infer.
func ParseKind(s string) (model.TargetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "page":
		return model.KindPage, nil
	case "photo", "image":
		return model.KindPhoto, nil
	case "group_feed", "group", "feed":
		return model.KindGroupFeed, nil
	default:
		return "", eris.Errorf("targets: unknown kind %q", s)
	}
}

func newTarget(rawURL, kind string) (Target, error) {
	rawURL = strings.TrimSpace(rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, eris.Wrapf(err, "targets: parse url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, eris.Errorf("targets: url %q must be http or https", rawURL)
	}

	k, err := ParseKind(kind)
	if err != nil {
		return Target{}, err
	}
	if k == "" {
		k = InferKind(rawURL)
	}

	return Target{URL: rawURL, Kind: k}, nil
}

// FromArgs builds a target list from positional CLI arguments. Each
// argument is a URL, optionally suffixed with "=kind". URLs routinely
// carry "=" in query strings, so the suffix only counts when it parses
// as a known kind.
func FromArgs(args []string) ([]Target, error) {
	out := make([]Target, 0, len(args))
	for _, arg := range args {
		rawURL, kind := arg, ""
		if i := strings.LastIndex(arg, "="); i > 0 {
			if k, err := ParseKind(arg[i+1:]); err == nil && k != "" {
				rawURL, kind = arg[:i], arg[i+1:]
			}
		}

		t, err := newTarget(rawURL, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadFile reads a target list file, choosing the parser by extension:
// .csv and .xlsx get column-aware parsing, anything else is treated as a
// plain list of URLs.
func LoadFile(path string) ([]Target, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "targets: open csv")
		}
		defer f.Close()
		return ParseCSV(f)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "targets: open list")
		}
		defer f.Close()
		return ParsePlain(f)
	}
}

// ParsePlain reads one URL per line. Blank lines and #-comments are
// skipped; a second whitespace-separated token is the kind.
func ParsePlain(r io.Reader) ([]Target, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "targets: read list")
	}

	var out []Target
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		kind := ""
		if len(fields) > 1 {
			kind = fields[1]
		}

		t, err := newTarget(fields[0], kind)
		if err != nil {
			return nil, eris.Wrapf(err, "targets: line %d", i+1)
		}
		out = append(out, t)
	}
	return out, nil
}

// ParseCSV reads targets from CSV with a url column and an optional kind
// column. A header row is recognized when the first cell reads "url".
func ParseCSV(r io.Reader) ([]Target, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.TrimLeadingSpace = true

	var out []Target
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "targets: read csv row")
		}
		row++

		if len(record) == 0 {
			continue
		}
		if row == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "url") {
			continue
		}

		kind := ""
		if len(record) > 1 {
			kind = record[1]
		}

		t, err := newTarget(record[0], kind)
		if err != nil {
			return nil, eris.Wrapf(err, "targets: csv row %d", row)
		}
		out = append(out, t)
	}
}

// LoadXLSX reads targets from the first sheet of an XLSX workbook, same
// column layout as CSV.
func LoadXLSX(path string) ([]Target, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "targets: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("targets: xlsx has no sheets")
	}

	var out []Target
	for i, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}

		if len(cells) == 0 || cells[0] == "" {
			continue
		}
		if i == 0 && strings.EqualFold(cells[0], "url") {
			continue
		}

		kind := ""
		if len(cells) > 1 {
			kind = cells[1]
		}

		t, err := newTarget(cells[0], kind)
		if err != nil {
			return nil, eris.Wrapf(err, "targets: xlsx row %d", i+1)
		}
		out = append(out, t)
	}
	return out, nil
}
