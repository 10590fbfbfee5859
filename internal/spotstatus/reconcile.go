package spotstatus

import (
	"time"

	"parkspot-backend/internal/hours"
	"parkspot-backend/internal/model"
	"parkspot-backend/internal/reservation"
	"parkspot-backend/internal/timeline"
)

// Reconcile derives the status shown for a spot. Physical occupancy outranks
// the schedule: an active session on the spot (ours, or one the backend
// reports as occupying it) wins over a reservation covering the current
// hour. reservations must be the spot's reservations for now's date.
func Reconcile(spot model.ParkingSpot, activeUsage []model.UsageSession, reservations []model.Reservation, now time.Time) model.SpotStatus {
	return ReconcileIndexed(spot, hours.Parse(spot.OpeningHours), activeUsage, reservation.NewIndex(reservations), now)
}

// ReconcileIndexed is Reconcile with the opening interval already parsed and
// the reservations already indexed.
func ReconcileIndexed(spot model.ParkingSpot, opening model.TimeInterval, activeUsage []model.UsageSession, idx *reservation.Index, now time.Time) model.SpotStatus {
	for _, u := range activeUsage {
		if u.SpotID == spot.ID && u.IsActive() {
			return model.SpotOccupied
		}
	}
	if spot.Status == model.SpotOccupied {
		return model.SpotOccupied
	}

	slots := timeline.BuildIndexed(opening, idx, now, now)
	if current, ok := timeline.Current(slots, now); ok && current.Status == model.SlotReserved {
		return model.SpotReserved
	}
	return model.SpotAvailable
}
