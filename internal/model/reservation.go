package model

// ReservationStatus is the backend status of a reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is a booked time range on one spot. StartTime and EndTime are
// wall-clock-of-day strings (HH:MM:SS); Date is YYYY-MM-DD.
type Reservation struct {
	ID        int64             `json:"id"`
	SpotID    int64             `json:"spot_id"`
	Date      string            `json:"date"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Status    ReservationStatus `json:"status"`
	Username  string            `json:"username,omitempty"`
	Notes     string            `json:"notes,omitempty"`
}

// Blocking reports whether the reservation occupies its interval.
func (r Reservation) Blocking() bool {
	return r.Status != ReservationCancelled
}

// ReservationRequest is the payload for CreateReservation.
type ReservationRequest struct {
	SpotID    int64  `json:"spot_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Notes     string `json:"notes,omitempty"`
}
