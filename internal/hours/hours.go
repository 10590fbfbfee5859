package hours

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"parkspot-backend/internal/model"
)

var (
	// HH[:MM] - HH[:MM], ASCII hyphen or en-dash, full-width colon tolerated.
	rangeRe = regexp.MustCompile(`^(\d{1,2})(?:[:：](\d{2}))?\s*[-–]\s*(\d{1,2})(?:[:：](\d{2}))?$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Markers that mean the facility never closes. Compared after lowercasing
// and stripping whitespace.
var allDayMarkers = map[string]struct{}{
	"24小时":    {},
	"24小时营业":  {},
	"全天":      {},
	"24h":     {},
	"24/7":    {},
	"24hours": {},
}

// Default is the interval used when the hours string cannot be understood.
var Default = model.TimeInterval{StartHour: 8, EndHour: 22}

// AllDay is the interval for a facility that never closes.
var AllDay = model.TimeInterval{StartHour: 0, EndHour: 24}

// Parse converts a facility's opening hours string into an interval. It never
// fails: anything it cannot read degrades to Default so a timeline can
// always be rendered.
func Parse(raw string) model.TimeInterval {
	iv, err := TryParse(raw)
	if err != nil {
		return Default
	}
	return iv
}

// TryParse is Parse without the fallback.
func TryParse(raw string) (model.TimeInterval, error) {
	s := strings.TrimSpace(raw)
	if IsAllDay(s) {
		return AllDay, nil
	}

	m := rangeRe.FindStringSubmatch(s)
	if m == nil {
		return model.TimeInterval{}, fmt.Errorf("unrecognised opening hours %q", raw)
	}

	start, err := clock(m[1], m[2])
	if err != nil {
		return model.TimeInterval{}, fmt.Errorf("opening hours %q: %w", raw, err)
	}
	end, err := clock(m[3], m[4])
	if err != nil {
		return model.TimeInterval{}, fmt.Errorf("opening hours %q: %w", raw, err)
	}

	// Ranges past midnight (22:00-06:00) are not supported.
	if start >= end {
		return model.TimeInterval{}, fmt.Errorf("opening hours %q: start is not before end", raw)
	}
	return model.TimeInterval{StartHour: start, EndHour: end}, nil
}

// IsAllDay reports whether s is one of the 24-hour markers.
func IsAllDay(s string) bool {
	key := strings.ToLower(spaceRe.ReplaceAllString(s, ""))
	_, ok := allDayMarkers[key]
	return ok
}

func clock(hh, mm string) (float64, error) {
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, err
	}
	m := 0
	if mm != "" {
		if m, err = strconv.Atoi(mm); err != nil {
			return 0, err
		}
	}
	if h > 24 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%s:%02d is not a time of day", hh, m)
	}
	return float64(h) + float64(m)/60, nil
}

// Format renders a fractional hour as HH:MM.
func Format(hour float64) string {
	total := int(hour*60 + 0.5)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
