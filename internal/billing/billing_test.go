package billing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"parkspot-backend/internal/model"
)

func TestEstimateCost(t *testing.T) {
	const rate = 5.0
	testCases := []struct {
		minutes  int
		expected float64
	}{
		{0, 0},
		{1, rate},
		{59, rate},
		{60, rate},
		{61, 2 * rate},
		{120, 2 * rate},
		{121, 3 * rate},
		{-3, 0},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d minutes", tc.minutes), func(t *testing.T) {
			assert.Equal(t, tc.expected, EstimateCost(tc.minutes, rate))
		})
	}
}

func TestBill_SixtyFiveMinutes(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(65 * time.Minute)

	elapsed, ok := ElapsedMinutes(start, now)
	assert.True(t, ok)

	assert.Equal(t, model.BillingResult{ElapsedMinutes: 65, BilledHours: 2, Amount: 10}, Bill(elapsed, 5))
}

func TestElapsedMinutes(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	m, ok := ElapsedMinutes(start, start.Add(59*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 0, m)

	m, ok = ElapsedMinutes(start, start.Add(2*time.Hour+30*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 120, m)

	_, ok = ElapsedMinutes(start, start.Add(-time.Minute))
	assert.False(t, ok, "clock skew must be rejected")
}

func TestPreviewCost(t *testing.T) {
	assert.Equal(t, 8.0, PreviewCost(1.5, 5))
	assert.Equal(t, 10.0, PreviewCost(2, 5))
	assert.Equal(t, 4.0, PreviewCost(0.25, 13))
	assert.Equal(t, 0.0, PreviewCost(0, 5))
	assert.Equal(t, 0.0, PreviewCost(-1, 5))
}
