package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/metrics"
)

// OpenSymbolLister reports the tickers that currently have open positions.
type OpenSymbolLister interface {
	OpenSymbols(ctx context.Context) ([]string, error)
}

// PriceSource fetches one last price for a source-specific symbol.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Poller periodically fetches prices for every symbol with open positions.
// Symbols with a fresh stream quote are skipped.
type Poller struct {
	positions OpenSymbolLister
	source    PriceSource
	agg       *Aggregator
	health    domain.HealthStore
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// NewPoller creates a Poller. health may be nil.
func NewPoller(positions OpenSymbolLister, source PriceSource, agg *Aggregator, health domain.HealthStore, interval, timeout time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		positions: positions,
		source:    source,
		agg:       agg,
		health:    health,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "feed_poller")),
	}
}

// Run polls every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "price poller started", slog.Duration("interval", p.interval))
	defer p.logger.Info("price poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches every open symbol that lacks a fresh stream quote and
// returns how many prices were observed.
func (p *Poller) PollOnce(ctx context.Context) int {
	symbols, err := p.positions.OpenSymbols(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "list open symbols failed", slog.String("error", err.Error()))
		return 0
	}
	if len(symbols) == 0 {
		return 0
	}

	observed := 0
	failed := 0
	started := time.Now()
	for _, sym := range symbols {
		if p.agg.Board().StreamFresh(sym, p.interval, time.Now().UTC()) {
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
		price, err := p.source.LastPrice(fetchCtx, YahooSymbol(sym))
		cancel()
		if err != nil {
			failed++
			metrics.FeedErrors.WithLabelValues(domain.SourcePoller).Inc()
			p.logger.WarnContext(ctx, "poll price failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := p.agg.Observe(ctx, sym, price, domain.SourcePoller); err != nil {
			return observed
		}
		observed++
	}

	p.recordStatus(ctx, observed, failed, time.Since(started))
	return observed
}

func (p *Poller) recordStatus(ctx context.Context, observed, failed int, took time.Duration) {
	if p.health == nil || observed+failed == 0 {
		return
	}
	status := "connected"
	if observed == 0 {
		status = "error"
	}
	if err := p.health.UpsertConnection(ctx, domain.ConnectionStatus{
		Source:    domain.SourcePoller,
		Status:    status,
		LatencyMS: took.Milliseconds(),
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		p.logger.WarnContext(ctx, "record poller status failed", slog.String("error", err.Error()))
	}
}
