// README: Dispatch service walks the engine ranking through the order state machine and runs the auto-dispatch scheduler.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hyperlocal/internal/config"
	"hyperlocal/internal/logger"
	"hyperlocal/internal/modules/order"
	"hyperlocal/internal/modules/rider"
	"hyperlocal/internal/modules/shop"
	"hyperlocal/internal/types"
)

type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	AssignRider(ctx context.Context, cmd order.AssignRiderCommand) error
	ListAwaitingRider(ctx context.Context, before time.Time, limit int) ([]*order.Order, error)
}

type Candidates interface {
	Candidates(ctx context.Context, near types.Point, radiusKm float64) ([]*rider.Rider, error)
}

type Shops interface {
	GetShop(ctx context.Context, id types.ID) (*shop.Shop, error)
}

type Result struct {
	Assigned   bool       `json:"assigned"`
	Assignment Assignment `json:"assignment"`
}

type AutoAssignCommand struct {
	OrderID types.ID
	ActorID types.ID
	// BySystem skips the shop-owner check.
	BySystem bool
}

type Service struct {
	engine   Engine
	orders   Orders
	riders   Candidates
	shops    Shops
	attempts AttemptStore
	clock    types.Clock
	cfg      config.DispatchConfig
}

// NewService wires the dispatch service. attempts may be nil, in which case
// the scheduler retries every awaiting order on every tick.
func NewService(orders Orders, riders Candidates, shops Shops, attempts AttemptStore, clock types.Clock, cfg config.DispatchConfig) *Service {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Service{
		engine:   NewEngine(cfg.RadiusKm, cfg.SpeedKmph),
		orders:   orders,
		riders:   riders,
		shops:    shops,
		attempts: attempts,
		clock:    clock,
		cfg:      cfg,
	}
}

// Suggest returns the best rider for the order without claiming it.
func (s *Service) Suggest(ctx context.Context, orderID types.ID) (Assignment, bool, error) {
	_, _, ranking, err := s.rank(ctx, orderID)
	if err != nil || len(ranking) == 0 {
		return Assignment{}, false, err
	}
	return ranking[0], true, nil
}

// AutoAssign claims the best available rider. Riders lost to a concurrent
// claim are skipped; running out of riders is not an error.
func (s *Service) AutoAssign(ctx context.Context, cmd AutoAssignCommand) (Result, error) {
	o, sh, ranking, err := s.rank(ctx, cmd.OrderID)
	if err != nil {
		return Result{}, err
	}
	if !cmd.BySystem && !sh.OwnedBy(cmd.ActorID) {
		return Result{}, order.ErrNotShopOwner
	}
	if !order.CanTransition(o.Status, order.StatusAssigned) {
		return Result{}, fmt.Errorf("%w: cannot dispatch order: current status is %s", order.ErrInvalidTransition, o.Status)
	}

	for _, a := range ranking {
		err := s.orders.AssignRider(ctx, order.AssignRiderCommand{
			OrderID:  o.ID,
			RiderID:  a.RiderID,
			ActorID:  cmd.ActorID,
			BySystem: cmd.BySystem,
		})
		if err == nil {
			return Result{Assigned: true, Assignment: a}, nil
		}
		if errors.Is(err, order.ErrPreconditionFailed) || errors.Is(err, order.ErrRiderNotFound) {
			logger.Debug("dispatch candidate unavailable, trying next",
				zap.String("order_id", string(o.ID)), zap.String("rider_id", string(a.RiderID)), zap.Error(err))
			continue
		}
		return Result{}, err
	}
	return Result{}, nil
}

func (s *Service) rank(ctx context.Context, orderID types.ID) (*order.Order, *shop.Shop, []Assignment, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	sh, err := s.shops.GetShop(ctx, o.ShopID)
	if errors.Is(err, shop.ErrNotFound) {
		return nil, nil, nil, order.ErrShopNotFound
	}
	if err != nil {
		return nil, nil, nil, err
	}
	candidates, err := s.riders.Candidates(ctx, sh.Location, s.engine.RadiusKm)
	if err != nil {
		return nil, nil, nil, err
	}
	return o, sh, s.engine.Rank(candidates, sh.Location, sh.Profile.AvgSpeedKmph), nil
}

// DispatchPending runs one scheduler pass and returns how many orders got a rider.
func (s *Service) DispatchPending(ctx context.Context) (int, error) {
	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	awaiting, err := s.orders.ListAwaitingRider(ctx, s.clock.Now(), batch)
	if err != nil {
		return 0, err
	}

	assigned := 0
	for _, o := range awaiting {
		if s.attempts != nil {
			ok, err := s.attempts.TryAcquire(ctx, o.ID, s.cfg.RetryAfter())
			if err != nil {
				logger.Warn("dispatch attempt gate failed", zap.String("order_id", string(o.ID)), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
		}
		res, err := s.AutoAssign(ctx, AutoAssignCommand{OrderID: o.ID, BySystem: true})
		if err != nil {
			logger.Warn("auto dispatch failed", zap.String("order_id", string(o.ID)), zap.Error(err))
			continue
		}
		if res.Assigned {
			assigned++
			if s.attempts != nil {
				if err := s.attempts.Clear(ctx, o.ID); err != nil {
					logger.Debug("dispatch attempt clear failed", zap.String("order_id", string(o.ID)), zap.Error(err))
				}
			}
			logger.Info("order auto dispatched",
				zap.String("order_id", string(o.ID)),
				zap.String("rider_id", string(res.Assignment.RiderID)),
				zap.Float64("distance_km", res.Assignment.DistanceToShopKm))
		}
	}
	return assigned, nil
}

func (s *Service) RunScheduler(ctx context.Context) {
	tick := s.cfg.Tick()
	if tick <= 0 {
		tick = 15 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.DispatchPending(ctx); err != nil {
				logger.Error("dispatch scheduler pass failed", zap.Error(err))
			}
		}
	}
}
