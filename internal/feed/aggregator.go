// Package feed gathers prices from polling and streaming sources, keeps the
// latest quote per symbol, and hands every fresh price to the risk engine.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/metrics"
)

// Aggregator is the single entry point for price observations.
type Aggregator struct {
	board  *Board
	cache  domain.PriceCache
	bus    domain.SignalBus
	ticks  chan<- domain.PriceTick
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. cache, bus and ticks may be nil.
func NewAggregator(board *Board, cache domain.PriceCache, bus domain.SignalBus, ticks chan<- domain.PriceTick, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		board:  board,
		cache:  cache,
		bus:    bus,
		ticks:  ticks,
		logger: logger.With(slog.String("component", "feed_aggregator")),
	}
}

// Board returns the quote board the aggregator writes to.
func (a *Aggregator) Board() *Board {
	return a.board
}

// Observe records one price. Cache and bus failures are logged; the tick is
// still delivered. It blocks while the engine channel is full and returns
// ctx.Err() if cancelled meanwhile.
func (a *Aggregator) Observe(ctx context.Context, symbol string, price float64, source string) error {
	if symbol == "" || price <= 0 {
		return nil
	}
	now := time.Now().UTC()
	q := a.board.Update(symbol, price, source, now)
	metrics.FeedObservations.WithLabelValues(source).Inc()

	if a.cache != nil {
		if err := a.cache.SetQuote(ctx, q); err != nil {
			a.logger.WarnContext(ctx, "cache quote failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if a.bus != nil {
		if payload, err := json.Marshal(q); err == nil {
			if err := a.bus.Publish(ctx, domain.ChannelPrices, payload); err != nil {
				a.logger.WarnContext(ctx, "publish quote failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if a.ticks == nil {
		return nil
	}
	select {
	case a.ticks <- domain.PriceTick{Symbol: symbol, Price: price, Source: source, At: now}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
