// README: Shop (vendor) records, their delivery profile and stock-bearing products.
package shop

import (
	"errors"

	"hyperlocal/internal/types"
)

var (
	ErrNotFound        = errors.New("shop not found")
	ErrProductNotFound = errors.New("product not found")
)

const (
	DefaultPrepMinutes       = 15
	DefaultMaxParallelOrders = 5
	DefaultBufferMinutes     = 5
	DefaultAvgSpeedKmph      = 20
	DefaultRadiusKm          = 5
)

// DeliveryProfile feeds the ETA estimator and dispatch pickup estimates.
type DeliveryProfile struct {
	PrepMinutes       float64 `json:"base_prep_minutes"`
	MaxParallelOrders int     `json:"max_parallel_orders"`
	BufferMinutes     float64 `json:"buffer_minutes"`
	AvgSpeedKmph      float64 `json:"avg_rider_speed_kmph"`
}

// WithDefaults fills unset (non-positive) fields with the platform defaults.
func (p DeliveryProfile) WithDefaults() DeliveryProfile {
	if p.PrepMinutes <= 0 {
		p.PrepMinutes = DefaultPrepMinutes
	}
	if p.MaxParallelOrders <= 0 {
		p.MaxParallelOrders = DefaultMaxParallelOrders
	}
	if p.BufferMinutes <= 0 {
		p.BufferMinutes = DefaultBufferMinutes
	}
	if p.AvgSpeedKmph <= 0 {
		p.AvgSpeedKmph = DefaultAvgSpeedKmph
	}
	return p
}

type Shop struct {
	ID       types.ID        `json:"id"`
	OwnerID  types.ID        `json:"owner_id"`
	Name     string          `json:"name"`
	Location types.Point     `json:"location"`
	RadiusKm float64         `json:"radius_km"`
	Profile  DeliveryProfile `json:"delivery_profile"`
}

// OwnedBy reports whether userID is the shop's owner.
func (s *Shop) OwnedBy(userID types.ID) bool {
	return userID != "" && s.OwnerID == userID
}

type Product struct {
	ID            types.ID `json:"id"`
	ShopID        types.ID `json:"shop_id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	StockQuantity int      `json:"stock_quantity"`
	IsAvailable   bool     `json:"is_available"`
}

// DecrementStock reduces stock by qty, floored at zero, and recomputes availability.
func (p *Product) DecrementStock(qty int) {
	p.StockQuantity = ClampedStock(p.StockQuantity, qty)
	p.IsAvailable = p.StockQuantity > 0
}

// ClampedStock returns current-qty floored at zero.
func ClampedStock(current, qty int) int {
	if qty >= current {
		return 0
	}
	return current - qty
}
