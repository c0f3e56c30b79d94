package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Both scripts act only while the key still holds the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)
)

// LockManager hands out token-guarded locks. While a lock is held its TTL is
// refreshed every third of the TTL, so a kill switch that closes many
// positions does not lose the lock halfway through. If the holder crashes the
// key still expires after one TTL.
type LockManager struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.Underlying(), logger: slog.Default().With(slog.String("component", "redis_lock"))}
}

// Acquire takes the lock at "lock:{key}" or returns domain.ErrLockHeld. The
// returned release func may be called more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	name := "lock:" + key
	token := uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go lm.keepAlive(name, token, ttl, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, lm.rdb, []string{name}, token).Err(); err != nil {
				lm.logger.Warn("lock release failed", slog.String("key", key), slog.String("error", err.Error()))
			}
		})
	}, nil
}

func (lm *LockManager) keepAlive(name, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := ttl / 3
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			n, err := extendScript.Run(ctx, lm.rdb, []string{name}, token, ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				lm.logger.Warn("lock refresh failed", slog.String("key", name), slog.String("error", err.Error()))
				continue
			}
			if n == 0 {
				lm.logger.Warn("lock lost before release", slog.String("key", name))
				return
			}
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
