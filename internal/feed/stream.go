package feed

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/metrics"
	"github.com/alanyoungcy/signalguard/internal/platform/binance"
)

const (
	// reconnectDelay is the base delay before re-dialing a dropped stream.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second
)

// TradeStreamer runs one symbol's trade stream until it fails or ctx ends.
type TradeStreamer interface {
	Run(ctx context.Context, symbol string, onConnect func(latency time.Duration), onTrade func(binance.Trade)) error
}

// StreamManager keeps one trade stream running for every streamable symbol
// that has open positions.
type StreamManager struct {
	positions  OpenSymbolLister
	streamer   TradeStreamer
	agg        *Aggregator
	health     domain.HealthStore
	streamable map[string]bool
	interval   time.Duration
	logger     *slog.Logger

	baseDelay time.Duration
	maxDelay  time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewStreamManager creates a StreamManager. Only tickers listed in
// streamable are ever streamed; health may be nil.
func NewStreamManager(positions OpenSymbolLister, streamer TradeStreamer, agg *Aggregator, health domain.HealthStore, streamable []string, interval time.Duration, logger *slog.Logger) *StreamManager {
	allowed := make(map[string]bool, len(streamable))
	for _, s := range streamable {
		allowed[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return &StreamManager{
		positions:  positions,
		streamer:   streamer,
		agg:        agg,
		health:     health,
		streamable: allowed,
		interval:   interval,
		logger:     logger.With(slog.String("component", "feed_streams")),
		baseDelay:  reconnectDelay,
		maxDelay:   maxReconnectDelay,
		running:    make(map[string]context.CancelFunc),
	}
}

// Run reconciles immediately and then every interval until ctx is
// cancelled, after which every stream is stopped.
func (m *StreamManager) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "stream manager started", slog.Int("streamable", len(m.streamable)))
	defer func() {
		m.stopAll()
		m.logger.Info("stream manager stopped")
	}()

	m.Reconcile(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Reconcile(ctx)
		}
	}
}

// Reconcile starts streams for newly open symbols and cancels streams whose
// symbols have no open positions left.
func (m *StreamManager) Reconcile(ctx context.Context) {
	symbols, err := m.positions.OpenSymbols(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "list open symbols failed", slog.String("error", err.Error()))
		return
	}

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if m.streamable[strings.ToUpper(s)] {
			want[s] = true
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for sym, cancel := range m.running {
		if !want[sym] {
			cancel()
			delete(m.running, sym)
			m.logger.InfoContext(ctx, "stream stopped", slog.String("symbol", sym))
		}
	}
	for sym := range want {
		if _, ok := m.running[sym]; ok {
			continue
		}
		sctx, cancel := context.WithCancel(ctx)
		m.running[sym] = cancel
		m.wg.Add(1)
		go func(sym string) {
			defer m.wg.Done()
			m.streamLoop(sctx, sym)
		}(sym)
		m.logger.InfoContext(ctx, "stream started", slog.String("symbol", sym))
	}
	metrics.StreamsActive.Set(float64(len(m.running)))
}

// Streaming returns the symbols with a running stream.
func (m *StreamManager) Streaming() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.running))
	for sym := range m.running {
		out = append(out, sym)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

func (m *StreamManager) stopAll() {
	m.mu.Lock()
	for sym, cancel := range m.running {
		cancel()
		delete(m.running, sym)
	}
	m.mu.Unlock()
	m.wg.Wait()
	metrics.StreamsActive.Set(0)
}

func (m *StreamManager) streamLoop(ctx context.Context, sym string) {
	source := "binance:" + sym
	delay := m.baseDelay

	for {
		err := m.streamer.Run(ctx, BinanceSymbol(sym),
			func(latency time.Duration) {
				delay = m.baseDelay
				m.recordStatus(ctx, source, "connected", latency)
			},
			func(tr binance.Trade) {
				if err := m.agg.Observe(ctx, sym, tr.Price, domain.SourceStream); err != nil && ctx.Err() == nil {
					m.logger.WarnContext(ctx, "observe trade failed",
						slog.String("symbol", sym),
						slog.String("error", err.Error()),
					)
				}
			},
		)
		if ctx.Err() != nil {
			m.recordStatus(context.WithoutCancel(ctx), source, "disconnected", 0)
			return
		}

		metrics.FeedErrors.WithLabelValues(domain.SourceStream).Inc()
		m.recordStatus(ctx, source, "error", 0)
		m.logger.WarnContext(ctx, "stream dropped, reconnecting",
			slog.String("symbol", sym),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.recordStatus(context.WithoutCancel(ctx), source, "disconnected", 0)
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > m.maxDelay {
			delay = m.maxDelay
		}
	}
}

func (m *StreamManager) recordStatus(ctx context.Context, source, status string, latency time.Duration) {
	if m.health == nil {
		return
	}
	if err := m.health.UpsertConnection(ctx, domain.ConnectionStatus{
		Source:    source,
		Status:    status,
		LatencyMS: latency.Milliseconds(),
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		m.logger.WarnContext(ctx, "record stream status failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
	}
}
