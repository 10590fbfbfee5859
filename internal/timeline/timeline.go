package timeline

import (
	"fmt"
	"math"
	"time"

	"parkspot-backend/internal/model"
	"parkspot-backend/internal/reservation"
)

// Build lays out one slot per whole hour of the opening interval. A slot is
// reserved when the first non-cancelled reservation covers it, current when
// it is the hour now falls in, available otherwise. now is always supplied
// by the caller so identical inputs give identical output.
func Build(opening model.TimeInterval, reservations []model.Reservation, now time.Time) []model.Slot {
	return build(opening, reservation.NewIndex(reservations), FractionalHour(now), true)
}

// BuildDay is Build for a timeline of a given calendar day: the current slot
// is only marked when now falls on day.
func BuildDay(opening model.TimeInterval, reservations []model.Reservation, day, now time.Time) []model.Slot {
	return BuildIndexed(opening, reservation.NewIndex(reservations), day, now)
}

// BuildIndexed is BuildDay over an already normalised reservation index, for
// callers that need the index's skipped entries or reuse it.
func BuildIndexed(opening model.TimeInterval, idx *reservation.Index, day, now time.Time) []model.Slot {
	return build(opening, idx, FractionalHour(now), SameDay(day, now))
}

func build(opening model.TimeInterval, idx *reservation.Index, nowHour float64, markCurrent bool) []model.Slot {
	first := int(math.Floor(opening.StartHour))
	last := int(math.Ceil(opening.EndHour))
	if last <= first {
		return []model.Slot{}
	}

	currentHour := int(math.Floor(nowHour))
	slots := make([]model.Slot, 0, last-first)
	for h := first; h < last; h++ {
		slot := model.Slot{Time: fmt.Sprintf("%02d:00", h), Status: model.SlotAvailable}

		if e, ok := idx.First(float64(h)); ok {
			id := e.Reservation.ID
			slot.Status = model.SlotReserved
			slot.ReservationID = &id
			slot.Username = e.Reservation.Username
		} else if markCurrent && h == currentHour && opening.Contains(float64(h)) {
			slot.Status = model.SlotCurrent
		}
		slot.Selectable = Selectable(slot)
		slots = append(slots, slot)
	}
	return slots
}

// Current returns the slot for the hour now falls in, if the timeline has one.
func Current(slots []model.Slot, now time.Time) (model.Slot, bool) {
	label := fmt.Sprintf("%02d:00", int(math.Floor(FractionalHour(now))))
	for _, s := range slots {
		if s.Time == label {
			return s, true
		}
	}
	return model.Slot{}, false
}

// Selectable reports whether the interaction layer may pick the slot.
func Selectable(s model.Slot) bool {
	return s.Status != model.SlotReserved
}

// FractionalHour is the wall-clock time of t as hours + minutes/60.
func FractionalHour(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

// SameDay reports whether a and b share a calendar date in b's location.
func SameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
