// README: ETA estimator: a pure function of distance, shop profile, kitchen load and peak flag returning a minutes window.
package eta

import (
	"math"

	"hyperlocal/internal/modules/shop"
)

const (
	DefaultPeakPenaltyMinutes = 10.0
	// maxLoadFactor caps how far kitchen load can stretch prep time.
	maxLoadFactor = 2.0
	// spreadRatio and minSpreadMinutes size the window above the point estimate.
	spreadRatio      = 0.25
	minSpreadMinutes = 5
)

type Window struct {
	MinMinutes int `json:"min_minutes"`
	MaxMinutes int `json:"max_minutes"`
}

type Estimator struct {
	PeakPenaltyMinutes float64
}

func NewEstimator(peakPenaltyMinutes float64) Estimator {
	if peakPenaltyMinutes < 0 {
		peakPenaltyMinutes = 0
	}
	return Estimator{PeakPenaltyMinutes: peakPenaltyMinutes}
}

// Estimate covers the whole journey: preparation scaled by pending orders,
// the shop buffer, travel at the profile speed and the peak penalty.
func (e Estimator) Estimate(distanceKm float64, profile shop.DeliveryProfile, pendingOrders int, isPeak bool) Window {
	p := profile.WithDefaults()
	load := 0.0
	if pendingOrders > 0 {
		load = math.Min(float64(pendingOrders)/float64(p.MaxParallelOrders), maxLoadFactor)
	}
	prep := p.PrepMinutes * (1 + load)
	return e.window(prep+p.BufferMinutes+travelMinutes(distanceKm, p.AvgSpeedKmph), isPeak)
}

// EstimateTravel covers only the ride to the customer, for orders already picked up.
func (e Estimator) EstimateTravel(distanceKm float64, profile shop.DeliveryProfile, isPeak bool) Window {
	p := profile.WithDefaults()
	return e.window(travelMinutes(distanceKm, p.AvgSpeedKmph), isPeak)
}

func (e Estimator) window(point float64, isPeak bool) Window {
	if isPeak {
		point += e.PeakPenaltyMinutes
	}
	// Drop float noise so 6.0000000001 minutes does not round up to 7.
	point = math.Round(point*1e6) / 1e6
	lo := int(math.Ceil(point))
	spread := int(math.Ceil(point * spreadRatio))
	if spread < minSpreadMinutes {
		spread = minSpreadMinutes
	}
	return Window{MinMinutes: lo, MaxMinutes: lo + spread}
}

// Estimate uses the default peak penalty.
func Estimate(distanceKm float64, profile shop.DeliveryProfile, pendingOrders int, isPeak bool) Window {
	return NewEstimator(DefaultPeakPenaltyMinutes).Estimate(distanceKm, profile, pendingOrders, isPeak)
}

func travelMinutes(distanceKm, speedKmph float64) float64 {
	if distanceKm <= 0 || math.IsNaN(distanceKm) {
		return 0
	}
	return distanceKm / speedKmph * 60
}
