// README: Rider service handles periodic location/online pushes and candidate lookups for dispatch.
package rider

import (
	"context"

	"go.uber.org/zap"

	"hyperlocal/internal/logger"
	"hyperlocal/internal/types"
)

// geoSearchSlack widens the Redis lookup so riders right at the boundary are
// not lost to the slightly different earth radius Redis uses.
const geoSearchSlack = 1.05

type Service struct {
	store  Store
	pool   GeoPool
	mirror Mirror
	clock  types.Clock
}

type Option func(*Service)

// WithMirror publishes every accepted location update to m.
func WithMirror(m Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// NewService builds a rider service. pool may be nil, in which case candidate
// lookups scan all online riders.
func NewService(store Store, pool GeoPool, clock types.Clock, opts ...Option) *Service {
	if clock == nil {
		clock = types.SystemClock{}
	}
	s := &Service{store: store, pool: pool, clock: clock}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) UpdateLocation(ctx context.Context, u LocationUpdate) (*Rider, error) {
	if u.RiderID == "" || !u.Position.Valid() {
		return nil, ErrBadRequest
	}
	r, err := s.store.GetRider(ctx, u.RiderID)
	if err != nil {
		return nil, err
	}
	if r.UserID != u.ActorUserID {
		return nil, ErrUnauthorized
	}

	now := s.clock.Now()
	if err := s.store.UpdateLocation(ctx, u.RiderID, u.Position, u.IsOnline, now); err != nil {
		return nil, err
	}
	r.Location = u.Position
	r.IsOnline = u.IsOnline
	r.UpdatedAt = now

	if s.pool != nil {
		var perr error
		if u.IsOnline {
			perr = s.pool.Add(ctx, u.RiderID, u.Position)
		} else {
			perr = s.pool.Remove(ctx, u.RiderID)
		}
		if perr != nil {
			logger.Warn("rider geo pool update failed", zap.String("rider_id", string(u.RiderID)), zap.Error(perr))
		}
	}
	if s.mirror != nil {
		if merr := s.mirror.Publish(ctx, r); merr != nil {
			logger.Warn("rider location mirror failed", zap.String("rider_id", string(u.RiderID)), zap.Error(merr))
		}
	}
	return r, nil
}

// Candidates returns riders that may be near p. The dispatch engine applies
// the authoritative online/busy/radius filters. An empty pool answer also
// falls back to the store scan, since the pool is empty after a Redis restart
// until riders push their next location.
func (s *Service) Candidates(ctx context.Context, p types.Point, radiusKm float64) ([]*Rider, error) {
	if s.pool != nil {
		ids, err := s.pool.Nearby(ctx, p, radiusKm*geoSearchSlack)
		switch {
		case err != nil:
			logger.Warn("rider geo pool lookup failed, scanning online riders", zap.Error(err))
		case len(ids) > 0:
			return s.store.GetRiders(ctx, ids)
		default:
			logger.Debug("rider geo pool has no nearby riders, scanning online riders")
		}
	}
	return s.store.ListOnline(ctx)
}
