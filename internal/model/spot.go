package model

// SpotStatus is the single user-facing availability state of a spot.
type SpotStatus string

const (
	SpotAvailable SpotStatus = "available"
	SpotOccupied  SpotStatus = "occupied"
	SpotReserved  SpotStatus = "reserved"
)

// ParkingSpot mirrors GetParkingSpot. Status is whatever the backend last
// reported; the reconciled status is computed on every fetch.
type ParkingSpot struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name,omitempty"`
	HourlyRate   float64    `json:"hourly_rate"`
	OpeningHours string     `json:"opening_hours"`
	Status       SpotStatus `json:"status"`
}

// TimeInterval is a half-open [StartHour, EndHour) range in fractional hours
// of the day, e.g. 8.5 is 08:30.
type TimeInterval struct {
	StartHour float64 `json:"start_hour"`
	EndHour   float64 `json:"end_hour"`
}

// Contains reports whether hour lies within the interval.
func (t TimeInterval) Contains(hour float64) bool {
	return hour >= t.StartHour && hour < t.EndHour
}
