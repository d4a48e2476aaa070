package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/showscout/scout-cli/internal/model"
)

func TestNormalizeTime(t *testing.T) {
	cases := []struct {
		input   string
		want    string
		changed bool
	}{
		{"9pm", "21:00", true},
		{"9 PM", "21:00", true},
		{"9:30pm", "21:30", true},
		{"9:30 p.m.", "21:30", true},
		{"12am", "00:00", true},
		{"12pm", "12:00", true},
		{"21:00", "21:00", false},
		{"7", "19:00", true},  // bare low hour reads as evening
		{"8:00", "08:00", true},
		{"10", "10:00", true}, // 8+ without meridiem left ambiguous
		{"", "", false},
		{"after the game", "after the game", false},
		{" 9pm ", "21:00", true},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, changed := NormalizeTime(tc.input)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.changed, changed)
		})
	}
}

func TestNormalizeShowTimes_MarksTimeFixed(t *testing.T) {
	rec := model.ShowRecord{StartTime: "8:00 PM", EndTime: "midnight"}
	// "8:00 PM" normalizes, "midnight" survives as free text.
	NormalizeShowTimes(&rec)
	assert.Equal(t, "20:00", rec.StartTime)
	assert.Equal(t, "midnight", rec.EndTime)
	assert.Equal(t, model.StatusTimeFixed, rec.Status)
}

func TestNormalizeShowTimes_AlreadyCanonical(t *testing.T) {
	rec := model.ShowRecord{StartTime: "21:00", Status: model.StatusValidated}
	NormalizeShowTimes(&rec)
	assert.Equal(t, "21:00", rec.StartTime)
	assert.Equal(t, model.StatusValidated, rec.Status)
}

func TestEscalate_Priority(t *testing.T) {
	// error > skipped > time_fixed/geo_fixed > conflict > validated
	assert.Equal(t, model.StatusError, model.Escalate(model.StatusSkipped, model.StatusError))
	assert.Equal(t, model.StatusSkipped, model.Escalate(model.StatusGeoFixed, model.StatusSkipped))
	assert.Equal(t, model.StatusGeoFixed, model.Escalate(model.StatusConflict, model.StatusGeoFixed))
	assert.Equal(t, model.StatusConflict, model.Escalate(model.StatusValidated, model.StatusConflict))
	assert.Equal(t, model.StatusError, model.Escalate(model.StatusError, model.StatusValidated))
}
