package model

import (
	"time"
)

// UsageStatus is the backend lifecycle of a parking usage record.
type UsageStatus string

const (
	UsageActive    UsageStatus = "active"
	UsageCompleted UsageStatus = "completed"
)

// UsageSession is a user's parking occupancy as reported by the backend.
type UsageSession struct {
	ID           int64       `json:"id"`
	SpotID       int64       `json:"spot_id"`
	StartTime    time.Time   `json:"start_time"` // UTC, backend-reported
	VehiclePlate string      `json:"vehicle_plate"`
	HourlyRate   float64     `json:"hourly_rate"`
	Status       UsageStatus `json:"status"`
}

// IsActive reports whether the session is still open.
func (u UsageSession) IsActive() bool {
	return u.Status == UsageActive
}

// BillingResult is a derived cost projection; it is never persisted.
type BillingResult struct {
	ElapsedMinutes int     `json:"elapsed_minutes"`
	BilledHours    int     `json:"billed_hours"`
	Amount         float64 `json:"amount"`
}
