package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/redis/go-redis/v9"
)

// IdempotencyGuard implements domain.IdempotencyGuard with SETNX keys that
// expire after the caller's TTL.
type IdempotencyGuard struct {
	rdb *redis.Client
}

// NewIdempotencyGuard creates an IdempotencyGuard backed by the given Client.
func NewIdempotencyGuard(c *Client) *IdempotencyGuard {
	return &IdempotencyGuard{rdb: c.Underlying()}
}

func idempotencyKey(key string) string {
	return "idem:" + key
}

// Claim reports true the first time key is seen within ttl.
func (g *IdempotencyGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, idempotencyKey(key), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim idempotency key %s: %w", key, err)
	}
	return ok, nil
}

// Compile-time interface check.
var _ domain.IdempotencyGuard = (*IdempotencyGuard)(nil)
