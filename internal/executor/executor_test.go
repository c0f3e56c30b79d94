package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

type quoteMap map[string]domain.PriceQuote

func (m quoteMap) Get(symbol string) (domain.PriceQuote, bool) {
	q, ok := m[symbol]
	return q, ok
}

func TestSimulatorFill(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	quotes := quoteMap{
		"BTCUSD": {Symbol: "BTCUSD", Price: 100.05, Source: domain.SourceStream, ObservedAt: now.Add(-2 * time.Second)},
		"ETHUSD": {Symbol: "ETHUSD", Price: 3000, Source: domain.SourcePoller, ObservedAt: now.Add(-time.Minute)},
		"XAUUSD": {Symbol: "XAUUSD", Price: 2400, Source: domain.SourceSignal, ObservedAt: now},
	}
	sim := NewSimulator(quotes, 10*time.Second)
	sim.now = func() time.Time { return now }
	ctx := context.Background()

	f, err := sim.Fill(ctx, "BTCUSD", domain.SideLong, 2, 100)
	require.NoError(t, err)
	assert.InDelta(t, 100.05, f.Price, 1e-9)
	assert.Equal(t, domain.SourceStream, f.Source)

	f, err = sim.Fill(ctx, "ETHUSD", domain.SideShort, 1, 2990)
	require.NoError(t, err)
	assert.InDelta(t, 2990.0, f.Price, 1e-9, "stale quote falls back to the alert price")

	f, err = sim.Fill(ctx, "XAUUSD", domain.SideLong, 1, 2390)
	require.NoError(t, err)
	assert.InDelta(t, 2390.0, f.Price, 1e-9, "signal-sourced quotes are not market prices")

	_, err = sim.Fill(ctx, "BTCUSD", domain.SideLong, 0, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidSignal)
}

func TestSimulatorFillsAtAlertPriceWithoutQuotes(t *testing.T) {
	sim := NewSimulator(nil, 10*time.Second)
	f, err := sim.Fill(context.Background(), "BTCUSD", domain.SideLong, 0.01, 50000)
	require.NoError(t, err)
	assert.InDelta(t, 50000.0, f.Price, 1e-9)
	assert.InDelta(t, 0.01, f.Quantity, 1e-12)
	assert.Equal(t, domain.SourceSignal, f.Source)
}

type guardFunc func(ctx context.Context, key string, ttl time.Duration) (bool, error)

func (f guardFunc) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return f(ctx, key, ttl)
}

func TestDedupLocalAndShared(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	shared := map[string]bool{"seen-elsewhere": true}
	calls := 0
	d := NewDedup(guardFunc(func(_ context.Context, key string, _ time.Duration) (bool, error) {
		calls++
		if shared[key] {
			return false, nil
		}
		shared[key] = true
		return true, nil
	}))
	d.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := d.Claim(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Claim(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, calls, "local hit does not reach the shared guard")

	ok, err = d.Claim(ctx, "seen-elsewhere", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, d.Cleanup())
	assert.Zero(t, d.Len())
}

func TestDedupSharedErrorAllowsRetry(t *testing.T) {
	fail := true
	d := NewDedup(guardFunc(func(context.Context, string, time.Duration) (bool, error) {
		if fail {
			return false, errors.New("redis down")
		}
		return true, nil
	}))
	ctx := context.Background()

	_, err := d.Claim(ctx, "k", time.Minute)
	require.Error(t, err)

	fail = false
	ok, err := d.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
