package lock

import (
	"context"
	"time"

	"github.com/promptloop/promptloop/internal/pkg/database"
)

// RedisStore backs the lock manager with Redis. SET NX EX provides the
// atomic set-if-absent with TTL; release runs a server-side
// compare-and-delete script.
type RedisStore struct {
	redis *database.RedisDB
}

// NewRedisStore creates a Redis-backed lock store
func NewRedisStore(redis *database.RedisDB) *RedisStore {
	return &RedisStore{redis: redis}
}

// Acquire implements Store
func (s *RedisStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.redis.SetNX(ctx, key, token, ttl)
}

// Release implements Store
func (s *RedisStore) Release(ctx context.Context, key, token string) (bool, error) {
	return s.redis.CompareAndDelete(ctx, key, token)
}
