// README: Live ETA tracking for an order: picks the origin by lifecycle stage and prefers road distance when available.
package eta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hyperlocal/internal/geo"
	"hyperlocal/internal/logger"
	"hyperlocal/internal/modules/order"
	"hyperlocal/internal/modules/rider"
	"hyperlocal/internal/modules/shop"
	"hyperlocal/internal/types"
)

type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	CountActive(ctx context.Context, shopID types.ID) (int, error)
}

type Riders interface {
	GetRider(ctx context.Context, id types.ID) (*rider.Rider, error)
}

type Shops interface {
	GetShop(ctx context.Context, id types.ID) (*shop.Shop, error)
}

// DistanceSource yields a travel distance, e.g. by road.
type DistanceSource interface {
	DistanceKm(ctx context.Context, from, to types.Point) (float64, error)
}

const (
	OriginShop  = "shop"
	OriginRider = "rider"
)

type Tracking struct {
	OrderID    types.ID     `json:"order_id"`
	Status     order.Status `json:"status"`
	Origin     string       `json:"origin"`
	OriginAt   types.Point  `json:"origin_location"`
	DistanceKm float64      `json:"distance_km"`
	Peak       bool         `json:"peak"`
	Window     Window       `json:"eta"`
	ComputedAt time.Time    `json:"computed_at"`
}

type Tracker struct {
	estimator Estimator
	peak      *PeakSchedule
	orders    Orders
	riders    Riders
	shops     Shops
	distance  DistanceSource
	clock     types.Clock
}

// NewTracker builds a tracker. distance may be nil to always use great-circle distance.
func NewTracker(estimator Estimator, peak *PeakSchedule, orders Orders, riders Riders, shops Shops, distance DistanceSource, clock types.Clock) *Tracker {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Tracker{
		estimator: estimator,
		peak:      peak,
		orders:    orders,
		riders:    riders,
		shops:     shops,
		distance:  distance,
		clock:     clock,
	}
}

// Track recomputes the delivery window. It has no side effects so clients
// may poll it.
func (t *Tracker) Track(ctx context.Context, orderID types.ID) (*Tracking, error) {
	o, err := t.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, fmt.Errorf("%w: order is %s", order.ErrPreconditionFailed, o.Status)
	}
	if o.DeliveryAddress.Coordinates == nil {
		return nil, fmt.Errorf("%w: delivery address has no coordinates", order.ErrPreconditionFailed)
	}
	dest := *o.DeliveryAddress.Coordinates

	sh, err := t.shops.GetShop(ctx, o.ShopID)
	if errors.Is(err, shop.ErrNotFound) {
		return nil, order.ErrShopNotFound
	}
	if err != nil {
		return nil, err
	}

	now := t.clock.Now()
	tr := &Tracking{
		OrderID:    o.ID,
		Status:     o.Status,
		Origin:     OriginShop,
		OriginAt:   sh.Location,
		Peak:       t.peak.IsPeak(now),
		ComputedAt: now,
	}

	if o.Status == order.StatusOutForDelivery && o.RiderID != nil {
		r, err := t.riders.GetRider(ctx, *o.RiderID)
		if err != nil {
			return nil, err
		}
		tr.Origin, tr.OriginAt = OriginRider, r.Location
		tr.DistanceKm = t.distanceKm(ctx, r.Location, dest)
		tr.Window = t.estimator.EstimateTravel(tr.DistanceKm, sh.Profile, tr.Peak)
		return tr, nil
	}

	pending, err := t.orders.CountActive(ctx, o.ShopID)
	if err != nil {
		return nil, err
	}
	// The tracked order itself is part of the kitchen load.
	if pending > 0 {
		pending--
	}
	tr.DistanceKm = t.distanceKm(ctx, sh.Location, dest)
	tr.Window = t.estimator.Estimate(tr.DistanceKm, sh.Profile, pending, tr.Peak)
	return tr, nil
}

func (t *Tracker) distanceKm(ctx context.Context, from, to types.Point) float64 {
	if t.distance != nil {
		d, err := t.distance.DistanceKm(ctx, from, to)
		if err == nil {
			return d
		}
		logger.Warn("road distance unavailable, using great-circle distance", zap.Error(err))
	}
	return geo.DistanceKm(from, to)
}
