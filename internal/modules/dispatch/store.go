// README: Dispatch attempt throttle backed by Redis so each awaiting order is retried at most once per window across instances.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hyperlocal/internal/types"
)

const attemptKeyPrefix = "dispatch:order:%s:attempt"

// AttemptStore gates auto-dispatch retries per order.
type AttemptStore interface {
	// TryAcquire reports whether the caller may attempt the order now; the
	// slot stays taken for ttl.
	TryAcquire(ctx context.Context, orderID types.ID, ttl time.Duration) (bool, error)
	Clear(ctx context.Context, orderID types.ID) error
}

type RedisAttemptStore struct {
	redis *redis.Client
}

func NewRedisAttemptStore(client *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{redis: client}
}

func (s *RedisAttemptStore) TryAcquire(ctx context.Context, orderID types.ID, ttl time.Duration) (bool, error) {
	return s.redis.SetNX(ctx, attemptKey(orderID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (s *RedisAttemptStore) Clear(ctx context.Context, orderID types.ID) error {
	return s.redis.Del(ctx, attemptKey(orderID)).Err()
}

func attemptKey(orderID types.ID) string {
	return fmt.Sprintf(attemptKeyPrefix, string(orderID))
}
