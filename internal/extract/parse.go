package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/showscout/scout-cli/internal/model"
)

// Error tags a failure with its taxonomy kind so the dispatcher can
// classify without string matching.
type Error struct {
	Kind model.ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind model.ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// cleanJSON strips markdown fences, extracts the outermost balanced
// JSON span, and repairs truncation.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	text = jsonSpan(strings.TrimSpace(text))

	// Attempt to repair truncated JSON (unclosed brackets/braces).
	text = repairTruncatedJSON(text)

	return text
}

// jsonSpan extracts the first balanced {...} or [...] span that decodes
// as JSON on its own, skipping braces embedded in surrounding prose.
// A span that never closes marks truncated output: the tail from its
// opening delimiter is returned for repairTruncatedJSON to finish.
func jsonSpan(text string) string {
	first := strings.IndexAny(text, "{[")
	if first < 0 {
		return text
	}
	for start := first; ; {
		end, closed := matchDelimiter(text, start)
		if !closed {
			return text[start:]
		}
		if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
			return candidate
		}
		next := strings.IndexAny(text[end+1:], "{[")
		if next < 0 {
			return text[first:]
		}
		start = end + 1 + next
	}
}

// matchDelimiter reports the index of the close matching the opening
// delimiter at start, ignoring delimiters inside JSON strings.
func matchDelimiter(text string, start int) (int, bool) {
	var stack []byte
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]

		switch {
		case escape:
			escape = false
		case c == '\\' && inString:
			escape = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case c == '}' || c == ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return i, true
				}
			}
		}
	}
	return 0, false
}

// repairTruncatedJSON closes any unclosed brackets or braces in truncated JSON.
func repairTruncatedJSON(text string) string {
	if len(text) == 0 {
		return text
	}

	// Track open delimiters in order.
	var stack []byte
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}

		if c == '\\' && inString {
			escape = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	// Close unclosed delimiters in reverse order.
	for i := len(stack) - 1; i >= 0; i-- {
		// Trim trailing comma before closing (common in truncated arrays).
		text = strings.TrimRight(text, " \t\n\r,")
		text += string(stack[i])
	}

	return text
}

// showResponse is the show-schema payload plus the model's self-reported
// confidence.
type showResponse struct {
	model.ShowFields
	Confidence *float64 `json:"confidence"`
}

// parseShowFields decodes a model response under the show schema. Parse
// failures are tagged MalformedModelOutput; schema and range violations
// are tagged ValidationFailure.
func parseShowFields(text string) (*model.ShowFields, float64, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, 0, newError(model.ErrMalformedModel, eris.New("extract: empty model output"))
	}

	// Some responses wrap the record in a top-level array; take the first
	// element.
	if strings.HasPrefix(cleaned, "[") {
		var elems []json.RawMessage
		if err := json.Unmarshal([]byte(cleaned), &elems); err != nil {
			return nil, 0, newError(model.ErrMalformedModel, eris.Wrap(err, "extract: decode model output"))
		}
		if len(elems) == 0 {
			return nil, 0, newError(model.ErrValidation, eris.New("extract: empty array response"))
		}
		cleaned = string(elems[0])
	}

	// The anchor key must be present, null or not: valid JSON that is not
	// the show schema at all is a validation failure, not a parse failure.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, 0, newError(model.ErrMalformedModel, eris.Wrap(err, "extract: decode model output"))
	}
	if _, ok := raw["venue"]; !ok {
		return nil, 0, newError(model.ErrValidation, eris.New("extract: response missing venue key"))
	}

	var resp showResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, 0, newError(model.ErrMalformedModel, eris.Wrap(err, "extract: decode show fields"))
	}

	if err := validateShowFields(&resp.ShowFields); err != nil {
		return nil, 0, err
	}

	if resp.Day != nil {
		normalized := model.NormalizeDay(*resp.Day)
		resp.Day = &normalized
	}

	confidence := 0.0
	if resp.Confidence != nil {
		confidence = clamp01(*resp.Confidence)
	}

	return &resp.ShowFields, confidence, nil
}

// validateShowFields enforces the numeric ranges the prompt cannot.
func validateShowFields(f *model.ShowFields) error {
	if f.Lat != nil && (*f.Lat < -90 || *f.Lat > 90) {
		return newError(model.ErrValidation, eris.Errorf("extract: latitude %v out of range", *f.Lat))
	}
	if f.Lng != nil && (*f.Lng < -180 || *f.Lng > 180) {
		return newError(model.ErrValidation, eris.Errorf("extract: longitude %v out of range", *f.Lng))
	}
	// One coordinate without the other is worse than none.
	if (f.Lat == nil) != (f.Lng == nil) {
		f.Lat = nil
		f.Lng = nil
	}
	return nil
}

// geoCompletionResponse is the geo-completion batch payload.
type geoCompletionResponse struct {
	Records []geoCompletionRecord `json:"records"`
}

type geoCompletionRecord struct {
	Index      *int     `json:"index"`
	Address    *string  `json:"address"`
	City       *string  `json:"city"`
	State      *string  `json:"state"`
	Zip        *string  `json:"zip"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	Confidence *float64 `json:"confidence"`
}

// parseGeoCompletion decodes a geo-completion response into per-index
// fills. Out-of-range indexes and invalid coordinates are dropped rather
// than failing the batch.
func parseGeoCompletion(text string, n int) ([]model.GeoFill, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, newError(model.ErrMalformedModel, eris.New("extract: empty geo completion output"))
	}

	var resp geoCompletionResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, newError(model.ErrMalformedModel, eris.Wrap(err, "extract: decode geo completion"))
	}
	if resp.Records == nil {
		return nil, newError(model.ErrValidation, eris.New("extract: geo completion missing records key"))
	}

	out := make([]model.GeoFill, n)
	for _, rec := range resp.Records {
		if rec.Index == nil || *rec.Index < 0 || *rec.Index >= n {
			continue
		}
		fill := model.GeoFill{
			Fields: model.ShowFields{
				Address: rec.Address,
				City:    rec.City,
				State:   rec.State,
				Zip:     rec.Zip,
				Lat:     rec.Lat,
				Lng:     rec.Lng,
			},
		}
		if rec.Confidence != nil {
			fill.Confidence = clamp01(*rec.Confidence)
		}
		if err := validateShowFields(&fill.Fields); err != nil {
			fill.Fields.Lat = nil
			fill.Fields.Lng = nil
		}
		out[*rec.Index] = fill
	}
	return out, nil
}

// PopupVerdict is the decoded popup classification.
type PopupVerdict struct {
	Kind        string  `json:"kind"`
	Dismissible bool    `json:"dismissible"`
	Confidence  float64 `json:"confidence"`
}

// popupKinds is the closed set the classifier may return.
var popupKinds = map[string]bool{
	"login_wall":          true,
	"cookie_consent":      true,
	"notification_prompt": true,
	"age_gate":            true,
	"none":                true,
}

// parsePopupVerdict decodes a popup classification response.
func parsePopupVerdict(text string) (*PopupVerdict, error) {
	cleaned := cleanJSON(text)
	var verdict PopupVerdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return nil, newError(model.ErrMalformedModel, eris.Wrap(err, "extract: decode popup verdict"))
	}
	if !popupKinds[verdict.Kind] {
		return nil, newError(model.ErrValidation, eris.Errorf("extract: unknown popup kind %q", verdict.Kind))
	}
	verdict.Confidence = clamp01(verdict.Confidence)
	return &verdict, nil
}

// groupNameResponse is the group-name extraction payload.
type groupNameResponse struct {
	GroupName  *string  `json:"group_name"`
	Confidence *float64 `json:"confidence"`
}

// parseGroupName decodes a group-name response. A null name is a valid
// "could not tell" answer.
func parseGroupName(text string) (string, float64, error) {
	cleaned := cleanJSON(text)
	var resp groupNameResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return "", 0, newError(model.ErrMalformedModel, eris.Wrap(err, "extract: decode group name"))
	}
	name := ""
	if resp.GroupName != nil {
		name = strings.TrimSpace(*resp.GroupName)
	}
	confidence := 0.0
	if resp.Confidence != nil {
		confidence = clamp01(*resp.Confidence)
	}
	return name, confidence, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
