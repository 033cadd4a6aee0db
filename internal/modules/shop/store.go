// README: Shop and product reads backed by PostgreSQL.
package shop

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hyperlocal/internal/types"
)

type Store interface {
	GetShop(ctx context.Context, id types.ID) (*Shop, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetShop(ctx context.Context, id types.ID) (*Shop, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, lat, lng, radius_km,
		       prep_minutes, max_parallel_orders, buffer_minutes, avg_speed_kmph
		FROM shops
		WHERE id = $1`, string(id),
	)
	var sh Shop
	err := row.Scan(
		&sh.ID, &sh.OwnerID, &sh.Name, &sh.Location.Lat, &sh.Location.Lng, &sh.RadiusKm,
		&sh.Profile.PrepMinutes, &sh.Profile.MaxParallelOrders, &sh.Profile.BufferMinutes, &sh.Profile.AvgSpeedKmph,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sh, nil
}
