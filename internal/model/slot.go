package model

// SlotStatus is the availability of one hour on the timeline.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotReserved  SlotStatus = "reserved"
	SlotCurrent   SlotStatus = "current"
)

// Slot is a one-hour display projection, rebuilt on every request.
// Selectable is false for reserved slots; clients should not offer them for
// a new reservation.
type Slot struct {
	Time          string     `json:"time"` // "HH:00"
	Status        SlotStatus `json:"status"`
	Selectable    bool       `json:"selectable"`
	ReservationID *int64     `json:"reservation_id,omitempty"`
	Username      string     `json:"username,omitempty"`
}
