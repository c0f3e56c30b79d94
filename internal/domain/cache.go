package domain

import (
	"context"
	"time"
)

// Bus channels.
const (
	ChannelPrices    = "prices"
	ChannelPositions = "positions"
	ChannelAlerts    = "alerts"
	StreamSignals    = "stream:signals"
)

// PriceCache provides fast access to the latest quotes.
type PriceCache interface {
	SetQuote(ctx context.Context, q PriceQuote) error
	GetQuote(ctx context.Context, symbol string) (PriceQuote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]PriceQuote, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// IdempotencyGuard remembers caller-supplied keys for a TTL.
type IdempotencyGuard interface {
	// Claim returns true the first time a key is seen within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
