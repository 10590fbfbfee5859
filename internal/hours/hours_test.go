package hours

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"parkspot-backend/internal/model"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected model.TimeInterval
	}{
		{name: "Chinese all-day marker", raw: "24小时", expected: AllDay},
		{name: "All-day marker with spaces", raw: " 24 Hours ", expected: AllDay},
		{name: "24/7", raw: "24/7", expected: AllDay},
		{name: "Standard range", raw: "08:00-22:00", expected: model.TimeInterval{StartHour: 8, EndHour: 22}},
		{name: "En-dash", raw: "09:00–12:00", expected: model.TimeInterval{StartHour: 9, EndHour: 12}},
		{name: "Missing minutes", raw: "7-19", expected: model.TimeInterval{StartHour: 7, EndHour: 19}},
		{name: "Half hours", raw: "08:30 - 21:30", expected: model.TimeInterval{StartHour: 8.5, EndHour: 21.5}},
		{name: "Full-width colon", raw: "06：00-23：00", expected: model.TimeInterval{StartHour: 6, EndHour: 23}},
		{name: "Midnight close", raw: "00:00-24:00", expected: model.TimeInterval{StartHour: 0, EndHour: 24}},
		{name: "Garbage falls back", raw: "garbage", expected: Default},
		{name: "Empty falls back", raw: "", expected: Default},
		{name: "Wrap past midnight falls back", raw: "22:00-06:00", expected: Default},
		{name: "Out of range hour falls back", raw: "08:00-25:00", expected: Default},
		{name: "Out of range minute falls back", raw: "08:61-20:00", expected: Default},
		{name: "24 with minutes falls back", raw: "08:00-24:30", expected: Default},
		{name: "Em-dash is not a separator", raw: "08:00—22:00", expected: Default},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Parse(tc.raw))
		})
	}
}

func TestTryParse_ReportsReason(t *testing.T) {
	_, err := TryParse("22:00-06:00")
	assert.ErrorContains(t, err, "not before end")

	_, err = TryParse("closed")
	assert.ErrorContains(t, err, "unrecognised")

	iv, err := TryParse("08:00-22:00")
	assert.NoError(t, err)
	assert.Equal(t, model.TimeInterval{StartHour: 8, EndHour: 22}, iv)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "08:30", Format(8.5))
	assert.Equal(t, "00:00", Format(0))
	assert.Equal(t, "24:00", Format(24))
	assert.Equal(t, "13:20", Format(13+1.0/3))
}
