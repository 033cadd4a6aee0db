// README: Estimator and peak schedule tests.
package eta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyperlocal/internal/modules/shop"
)

func TestEstimateDefaults(t *testing.T) {
	profile := shop.DeliveryProfile{}

	cases := []struct {
		name     string
		distance float64
		pending  int
		peak     bool
		want     Window
	}{
		{"idle kitchen", 3, 0, false, Window{29, 37}},
		{"at capacity", 3, 5, false, Window{44, 55}},
		{"load is capped", 3, 20, false, Window{59, 74}},
		{"peak penalty", 3, 0, true, Window{39, 49}},
		{"zero distance keeps minimum spread", 0, 0, false, Window{20, 25}},
		{"negative distance treated as zero", -4, 0, false, Window{20, 25}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Estimate(tc.distance, profile, tc.pending, tc.peak))
		})
	}
}

func TestEstimateUsesShopProfile(t *testing.T) {
	profile := shop.DeliveryProfile{PrepMinutes: 10, MaxParallelOrders: 2, BufferMinutes: 2, AvgSpeedKmph: 30}
	// prep 10 * (1 + 1/2) = 15, buffer 2, travel 3 km at 30 km/h = 6
	got := NewEstimator(0).Estimate(3, profile, 1, true)
	assert.Equal(t, Window{23, 29}, got)
}

func TestEstimateIsPureAndMonotonic(t *testing.T) {
	profile := shop.DeliveryProfile{}.WithDefaults()
	e := NewEstimator(DefaultPeakPenaltyMinutes)

	first := e.Estimate(2.4, profile, 3, false)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Estimate(2.4, profile, 3, false))
	}

	prev := e.Estimate(2.4, profile, 0, false)
	for pending := 1; pending <= 15; pending++ {
		next := e.Estimate(2.4, profile, pending, false)
		assert.GreaterOrEqual(t, next.MinMinutes, prev.MinMinutes)
		prev = next
	}
	assert.Greater(t, e.Estimate(2.4, profile, 3, true).MinMinutes, first.MinMinutes)
	assert.Greater(t, e.Estimate(5, profile, 3, false).MinMinutes, first.MinMinutes)
	assert.Less(t, first.MinMinutes, first.MaxMinutes)
}

func TestEstimateTravel(t *testing.T) {
	e := NewEstimator(DefaultPeakPenaltyMinutes)
	assert.Equal(t, Window{6, 11}, e.EstimateTravel(2, shop.DeliveryProfile{}, false))
	assert.Equal(t, Window{16, 21}, e.EstimateTravel(2, shop.DeliveryProfile{}, true))
}

func TestPeakSchedule(t *testing.T) {
	s, err := ParsePeakSchedule("12:00-14:00, 19:00-22:00", "UTC")
	require.NoError(t, err)
	require.Len(t, s.windows, 2)

	at := func(h, m int) time.Time { return time.Date(2026, 10, 16, h, m, 0, 0, time.UTC) }
	assert.False(t, s.IsPeak(at(11, 59)))
	assert.True(t, s.IsPeak(at(12, 0)))
	assert.True(t, s.IsPeak(at(13, 59)))
	assert.False(t, s.IsPeak(at(14, 0)))
	assert.True(t, s.IsPeak(at(21, 30)))

	// Evaluated in the schedule's zone, not the caller's.
	ist := time.FixedZone("IST", 5*3600+1800)
	assert.True(t, s.IsPeak(time.Date(2026, 10, 16, 18, 0, 0, 0, ist)), "18:00 IST is 12:30 UTC")
}

func TestPeakScheduleWrapsMidnight(t *testing.T) {
	s, err := ParsePeakSchedule("22:00-02:00", "UTC")
	require.NoError(t, err)
	assert.True(t, s.IsPeak(time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)))
	assert.True(t, s.IsPeak(time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC)))
	assert.False(t, s.IsPeak(time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)))
}

func TestParsePeakScheduleErrors(t *testing.T) {
	for _, raw := range []string{"12-14", "12:00", "25:00-26:00", "12:00-12:00", "aa:bb-cc:dd"} {
		_, err := ParsePeakSchedule(raw, "UTC")
		assert.Error(t, err, raw)
	}
	_, err := ParsePeakSchedule("12:00-14:00", "Mars/Olympus")
	assert.Error(t, err)

	empty, err := ParsePeakSchedule("", "")
	require.NoError(t, err)
	assert.False(t, empty.IsPeak(time.Now()))

	var none *PeakSchedule
	assert.False(t, none.IsPeak(time.Now()))
}
