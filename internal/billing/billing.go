package billing

import (
	"math"
	"time"

	"parkspot-backend/internal/model"
)

// BilledHours rounds elapsed minutes up to whole hours. Zero elapsed time is
// free, so a session is not charged the moment it is created.
func BilledHours(elapsedMinutes int) int {
	if elapsedMinutes <= 0 {
		return 0
	}
	return (elapsedMinutes + 59) / 60
}

// EstimateCost is the running cost of a session after elapsedMinutes.
func EstimateCost(elapsedMinutes int, hourlyRate float64) float64 {
	return float64(BilledHours(elapsedMinutes)) * hourlyRate
}

// Bill bundles the elapsed minutes, billed hours and amount.
func Bill(elapsedMinutes int, hourlyRate float64) model.BillingResult {
	billed := BilledHours(elapsedMinutes)
	return model.BillingResult{
		ElapsedMinutes: elapsedMinutes,
		BilledHours:    billed,
		Amount:         float64(billed) * hourlyRate,
	}
}

// ElapsedMinutes is floor((now - start) / 1m). ok is false when now is
// before start (clock skew); such values must not be shown.
func ElapsedMinutes(start, now time.Time) (int, bool) {
	d := now.Sub(start)
	if d < 0 {
		return 0, false
	}
	return int(d / time.Minute), true
}

// PreviewCost prices a reservation over a continuous hour span, rounding the
// amount up to a whole currency unit.
func PreviewCost(hours, hourlyRate float64) float64 {
	if hours <= 0 {
		return 0
	}
	return math.Ceil(hours * hourlyRate)
}
