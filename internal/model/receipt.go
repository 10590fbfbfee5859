package model

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// UsageReceipt records a finished usage session: the client's running
// estimate next to the amount the backend settled on.
type UsageReceipt struct {
	SessionID       int64      `gorm:"primaryKey;autoIncrement:false" json:"session_id"`
	Username        string     `gorm:"size:128;index;not null" json:"username"`
	SpotID          int64      `gorm:"not null" json:"spot_id"`
	VehiclePlate    string     `gorm:"size:32;not null" json:"vehicle_plate"`
	HourlyRate      float64    `gorm:"not null" json:"hourly_rate"`
	StartTime       time.Time  `gorm:"not null" json:"start_time"`
	EndedAt         null.Time  `json:"ended_at"`
	ElapsedMinutes  int        `gorm:"not null" json:"elapsed_minutes"`
	EstimatedAmount float64    `gorm:"not null" json:"estimated_amount"`
	SettledAmount   null.Float `json:"settled_amount"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
}

// Discrepancy is settled minus estimated, or zero when nothing was settled.
func (r UsageReceipt) Discrepancy() float64 {
	if !r.SettledAmount.Valid {
		return 0
	}
	return r.SettledAmount.Float64 - r.EstimatedAmount
}
