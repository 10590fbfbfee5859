package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parkspot-backend/config"
	"parkspot-backend/internal/model"
)

func TestInit_InMemorySQLite(t *testing.T) {
	gormDB, err := Init(&config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:", MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)

	receipt := model.UsageReceipt{
		SessionID:       1,
		Username:        "lin",
		SpotID:          7,
		VehiclePlate:    "沪A12345",
		HourlyRate:      5,
		StartTime:       time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC),
		ElapsedMinutes:  30,
		EstimatedAmount: 5,
	}
	require.NoError(t, gormDB.WithContext(context.Background()).Create(&receipt).Error)

	var got model.UsageReceipt
	require.NoError(t, gormDB.First(&got, 1).Error)
	assert.Equal(t, "沪A12345", got.VehiclePlate)
	assert.Equal(t, null.Float{}, got.SettledAmount)
	assert.True(t, gormDB.Migrator().HasTable(&model.PushSubscription{}))
}

func TestInit_UnknownDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}
