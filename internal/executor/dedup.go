package executor

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// Dedup is an in-process idempotency guard. Keys seen within their TTL are
// rejected locally; new keys are passed to the optional shared guard so other
// instances see them too. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // key -> expiry
	next domain.IdempotencyGuard
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup in front of next (may be nil).
func NewDedup(next domain.IdempotencyGuard) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		next: next,
		now:  time.Now,
	}
}

var _ domain.IdempotencyGuard = (*Dedup)(nil)

// Claim reports true the first time key is seen within ttl.
func (d *Dedup) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	now := d.now()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		d.mu.Unlock()
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	d.mu.Unlock()

	if d.next == nil {
		return true, nil
	}
	ok, err := d.next.Claim(ctx, key, ttl)
	if err != nil {
		// Let a retry reach the shared guard again.
		d.forget(key)
		return false, err
	}
	return ok, nil
}

func (d *Dedup) forget(key string) {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}

// Cleanup removes expired entries and returns how many were dropped. It is
// scheduled periodically to bound memory.
func (d *Dedup) Cleanup() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	n := 0
	for key, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
