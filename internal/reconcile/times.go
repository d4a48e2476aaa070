package reconcile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/showscout/scout-cli/internal/model"
)

// timePattern matches the time spellings that show up on flyers:
// "9pm", "9 PM", "9:30pm", "21:00", "9".
var timePattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(?i:([ap])\.?m\.?)?$`)

// NormalizeTime canonicalizes a clock string to 24h "HH:MM". The second
// return reports whether the value changed. Unparseable input is returned
// as-is so free text like "after the game" survives.
func NormalizeTime(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", false
	}

	m := timePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return trimmed, trimmed != s
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return trimmed, trimmed != s
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return trimmed, trimmed != s
		}
	}

	switch strings.ToLower(m[3]) {
	case "p":
		if hour < 12 {
			hour += 12
		}
	case "a":
		if hour == 12 {
			hour = 0
		}
	case "":
		// Bare low hours on karaoke flyers mean evening: "7" is 19:00,
		// not 07:00. Hours 8+ are left alone.
		if hour >= 1 && hour <= 7 {
			hour += 12
		}
	}

	normalized := fmt.Sprintf("%02d:%02d", hour, minute)
	return normalized, normalized != s
}

// NormalizeShowTimes canonicalizes a record's start and end times,
// escalating to time_fixed when either changed.
func NormalizeShowTimes(rec *model.ShowRecord) {
	start, startChanged := NormalizeTime(rec.StartTime)
	end, endChanged := NormalizeTime(rec.EndTime)
	rec.StartTime = start
	rec.EndTime = end
	if startChanged || endChanged {
		rec.Status = model.Escalate(rec.Status, model.StatusTimeFixed)
	}
}
