// README: Rider store backed by PostgreSQL profiles and a Redis GEO pool of online riders.
package rider

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"hyperlocal/internal/types"
)

type Store interface {
	GetRider(ctx context.Context, id types.ID) (*Rider, error)
	GetRiders(ctx context.Context, ids []types.ID) ([]*Rider, error)
	ListOnline(ctx context.Context) ([]*Rider, error)
	UpdateLocation(ctx context.Context, id types.ID, pos types.Point, online bool, at time.Time) error
}

// GeoPool indexes online rider positions for radius lookups.
type GeoPool interface {
	Add(ctx context.Context, id types.ID, pos types.Point) error
	Remove(ctx context.Context, id types.ID) error
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const riderColumns = `id, user_id, lat, lng, is_online, is_busy, assigned_order_id, updated_at`

func (s *PostgresStore) GetRider(ctx context.Context, id types.ID) (*Rider, error) {
	row := s.db.QueryRow(ctx, `SELECT `+riderColumns+` FROM riders WHERE id = $1`, string(id))
	r, err := scanRider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) GetRiders(ctx context.Context, ids []types.ID) ([]*Rider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `SELECT `+riderColumns+` FROM riders WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	return collectRiders(rows)
}

func (s *PostgresStore) ListOnline(ctx context.Context) ([]*Rider, error) {
	rows, err := s.db.Query(ctx, `SELECT `+riderColumns+` FROM riders WHERE is_online = TRUE`)
	if err != nil {
		return nil, err
	}
	return collectRiders(rows)
}

// UpdateLocation never touches is_busy / assigned_order_id.
func (s *PostgresStore) UpdateLocation(ctx context.Context, id types.ID, pos types.Point, online bool, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE riders
		SET lat = $1, lng = $2, is_online = $3, updated_at = $4
		WHERE id = $5`,
		pos.Lat, pos.Lng, online, at, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRider(row pgx.Row) (*Rider, error) {
	var r Rider
	var assigned sql.NullString
	if err := row.Scan(&r.ID, &r.UserID, &r.Location.Lat, &r.Location.Lng,
		&r.IsOnline, &r.IsBusy, &assigned, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if assigned.Valid {
		id := types.ID(assigned.String)
		r.AssignedOrderID = &id
	}
	return &r, nil
}

func collectRiders(rows pgx.Rows) ([]*Rider, error) {
	defer rows.Close()
	var out []*Rider
	for rows.Next() {
		r, err := scanRider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const riderGeoKey = "riders:online"

type RedisGeoPool struct {
	redis *redis.Client
}

func NewRedisGeoPool(client *redis.Client) *RedisGeoPool {
	return &RedisGeoPool{redis: client}
}

func (p *RedisGeoPool) Add(ctx context.Context, id types.ID, pos types.Point) error {
	return p.redis.GeoAdd(ctx, riderGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (p *RedisGeoPool) Remove(ctx context.Context, id types.ID) error {
	return p.redis.ZRem(ctx, riderGeoKey, string(id)).Err()
}

// Nearby returns rider ids within radiusKm of p, closest first.
func (p *RedisGeoPool) Nearby(ctx context.Context, pt types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := p.redis.GeoRadius(ctx, riderGeoKey, pt.Lng, pt.Lat, &redis.GeoRadiusQuery{
		Radius: radiusKm,
		Unit:   "km",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r.Name)
	}
	return ids, nil
}
