package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func TestPriceCacheRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	pc := NewPriceCache(c, time.Minute)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, pc.SetQuote(ctx, domain.PriceQuote{
		Symbol: "BTCUSD", Price: 64250.5, Color: domain.PriceUp, Source: domain.SourceStream, ObservedAt: at,
	}))

	q, err := pc.GetQuote(ctx, "BTCUSD")
	require.NoError(t, err)
	assert.InDelta(t, 64250.5, q.Price, 1e-9)
	assert.Equal(t, domain.PriceUp, q.Color)
	assert.Equal(t, domain.SourceStream, q.Source)
	assert.True(t, at.Equal(q.ObservedAt))

	_, err = pc.GetQuote(ctx, "ETHUSD")
	require.ErrorIs(t, err, domain.ErrNotFound)

	quotes, err := pc.GetQuotes(ctx, []string{"BTCUSD", "ETHUSD"})
	require.NoError(t, err)
	assert.Len(t, quotes, 1)

	mr.FastForward(2 * time.Minute)
	_, err = pc.GetQuote(ctx, "BTCUSD")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManagerExclusive(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "killswitch:1", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "killswitch:1", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "killswitch:1", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestLockReleaseKeepsForeignToken(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(context.Background(), "killswitch:2", time.Minute)
	require.NoError(t, err)

	// Expired and re-taken by someone else.
	require.NoError(t, mr.Set("lock:killswitch:2", "other"))
	unlock()

	got, err := mr.Get("lock:killswitch:2")
	require.NoError(t, err)
	assert.Equal(t, "other", got)
}

func TestLockRefreshedWhileHeld(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(context.Background(), "killswitch:3", 150*time.Millisecond)
	require.NoError(t, err)
	defer unlock()

	mr.SetTTL("lock:killswitch:3", time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("lock:killswitch:3") > 100*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIdempotencyGuard(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	g := NewIdempotencyGuard(c)

	ok, err := g.Claim(ctx, "alert-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, "alert-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = g.Claim(ctx, "alert-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterAllow(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "webhook:10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "webhook:10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "webhook:10.0.0.2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBusStream(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	bus := NewSignalBus(c, 100)

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamSignals, []byte(`{"ticker":"BTCUSD"}`)))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamSignals, []byte(`{"ticker":"ETHUSD"}`)))

	msgs, err := bus.StreamRead(ctx, domain.StreamSignals, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"ticker":"BTCUSD"}`, string(msgs[0].Payload))

	msgs, err = bus.StreamRead(ctx, domain.StreamSignals, msgs[1].ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c, 0)

	ch, err := bus.Subscribe(ctx, domain.ChannelPrices)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelPrices, []byte("tick")))

	select {
	case msg := <-ch:
		assert.Equal(t, "tick", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
