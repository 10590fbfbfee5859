package reservation

import (
	"fmt"
	"regexp"
	"strconv"

	"parkspot-backend/internal/model"
)

var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// Entry is a blocking reservation normalised to fractional hours.
type Entry struct {
	Reservation model.Reservation
	Start       float64
	End         float64
}

// Skipped is a reservation that could not be placed on the hour axis.
type Skipped struct {
	Reservation model.Reservation
	Reason      error
}

// Index holds the blocking reservations of one spot and day in list order.
// The backend is expected to send them sorted; first match wins.
type Index struct {
	entries []Entry
	skipped []Skipped
}

// NewIndex drops cancelled reservations and converts the rest to [start, end)
// pairs of fractional hours.
func NewIndex(reservations []model.Reservation) *Index {
	idx := &Index{entries: make([]Entry, 0, len(reservations))}
	for _, r := range reservations {
		if !r.Blocking() {
			continue
		}
		start, err := ParseClock(r.StartTime)
		if err != nil {
			idx.skipped = append(idx.skipped, Skipped{Reservation: r, Reason: err})
			continue
		}
		end, err := ParseClock(r.EndTime)
		if err != nil {
			idx.skipped = append(idx.skipped, Skipped{Reservation: r, Reason: err})
			continue
		}
		if end <= start {
			idx.skipped = append(idx.skipped, Skipped{
				Reservation: r,
				Reason:      fmt.Errorf("reservation %d ends at or before it starts", r.ID),
			})
			continue
		}
		idx.entries = append(idx.entries, Entry{Reservation: r, Start: start, End: end})
	}
	return idx
}

// Entries returns the blocking entries in list order.
func (idx *Index) Entries() []Entry {
	return idx.entries
}

// Skipped returns the reservations that were ignored because their times
// were malformed.
func (idx *Index) Skipped() []Skipped {
	return idx.skipped
}

// Overlaps reports whether hour falls within e.
func Overlaps(hour float64, e Entry) bool {
	return hour >= e.Start && hour < e.End
}

// First returns the first entry covering hour.
func (idx *Index) First(hour float64) (Entry, bool) {
	for _, e := range idx.entries {
		if Overlaps(hour, e) {
			return e, true
		}
	}
	return Entry{}, false
}

// Conflicts lists the entries that intersect [start, end). It is advisory:
// the backend decides collisions.
func (idx *Index) Conflicts(start, end float64) []Entry {
	var out []Entry
	for _, e := range idx.entries {
		if start < e.End && e.Start < end {
			out = append(out, e)
		}
	}
	return out
}

// ParseClock converts HH:MM or HH:MM:SS into fractional hours. Seconds are
// accepted but ignored.
func ParseClock(s string) (float64, error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	if h > 24 || mins > 59 || (h == 24 && mins != 0) {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	if m[3] != "" {
		if sec, _ := strconv.Atoi(m[3]); sec > 59 {
			return 0, fmt.Errorf("clock time %q out of range", s)
		}
	}
	return float64(h) + float64(mins)/60, nil
}
