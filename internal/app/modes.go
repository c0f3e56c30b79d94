package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/executor"
	"github.com/alanyoungcy/signalguard/internal/feed"
	"github.com/alanyoungcy/signalguard/internal/notify"
	"github.com/alanyoungcy/signalguard/internal/pipeline"
	"github.com/alanyoungcy/signalguard/internal/platform/binance"
	"github.com/alanyoungcy/signalguard/internal/platform/yahoo"
	"github.com/alanyoungcy/signalguard/internal/risk"
	"github.com/alanyoungcy/signalguard/internal/server"
	"github.com/alanyoungcy/signalguard/internal/server/handler"
	"github.com/alanyoungcy/signalguard/internal/server/ws"
	"github.com/alanyoungcy/signalguard/internal/service"
)

// components are the long-lived objects shared by the modes.
type components struct {
	deps  *Dependencies
	async *notify.Async
	ticks chan domain.PriceTick
	board *feed.Board
	agg   *feed.Aggregator
	dedup *executor.Dedup

	// streams reports live trade streams; noStreams until the engine starts
	// a stream manager.
	streams handler.StreamLister

	accounts  *service.AccountService
	cooldowns *service.CooldownService
	slippage  *service.SlippageService
	engine    *service.Engine
	signals   *service.SignalService
	kill      *service.PanicService
	heartbeat *service.HeartbeatService
	stats     *service.StatsService
	positions *service.PositionService

	scheduler *pipeline.Scheduler
}

// build constructs every service from deps. Nothing is started.
func (a *App) build(deps *Dependencies) *components {
	cfg := a.cfg
	c := &components{
		deps:  deps,
		async: notify.NewAsync(deps.Notifier, 256, 10*time.Second, a.logger),
		ticks: make(chan domain.PriceTick, max(cfg.Risk.TickBuffer, 1)),
		board: feed.NewBoard(),
		dedup: executor.NewDedup(deps.Idempotency),

		streams: noStreams{},
	}
	c.agg = feed.NewAggregator(c.board, deps.PriceCache, deps.SignalBus, c.ticks, a.logger)

	st := deps.Stores
	c.accounts = service.NewAccountService(st, a.logger)
	c.cooldowns = service.NewCooldownService(st.Cooldowns, cfg.Risk.CooldownDuration.Duration, a.logger)
	c.slippage = service.NewSlippageService(st.Slippage, cfg.Signal.SlippageTolerancePct, a.logger)
	c.heartbeat = service.NewHeartbeatService(&service.HeartbeatState{}, deps.Positions, deps.Health, c.async,
		service.HeartbeatConfig{
			Interval:   cfg.Heartbeat.Interval.Duration,
			StaleAfter: cfg.Heartbeat.StaleAfter.Duration,
			WarnAfter:  cfg.Heartbeat.WarnAfter.Duration,
		}, a.logger)
	c.engine = service.NewEngine(st, c.cooldowns, deps.SignalBus, c.async, service.EngineConfig{
		Params: risk.Params{
			TrailingPct:    cfg.Risk.TrailingPct,
			FloorPct:       cfg.Risk.FloorPct,
			BreakEvenPct:   cfg.Risk.BreakEvenPct,
			CommissionRate: cfg.Risk.CommissionRate,
			TP1Pct:         cfg.Risk.TP1Pct,
			TP1Fraction:    cfg.Risk.TP1Fraction,
			TP2Pct:         cfg.Risk.TP2Pct,
		},
		CooldownDuration: cfg.Risk.CooldownDuration.Duration,
		Workers:          cfg.Risk.Workers,
		ShardBuffer:      cfg.Risk.TickBuffer,
		Alive:            func() { c.heartbeat.Touch() },
	}, a.logger)
	var fillQuotes executor.QuoteLookup
	if cfg.Signal.FillFromQuote {
		fillQuotes = c.board
	}
	c.signals = service.NewSignalService(st, service.SignalDeps{
		Engine:         c.engine,
		Cooldowns:      c.cooldowns,
		Slippage:       c.slippage,
		Sizer:          service.ExposureCappedSizer{Next: service.NotionalSizer{}, Positions: deps.Positions},
		Fills:          executor.NewSimulator(fillQuotes, cfg.Heartbeat.StaleAfter.Duration),
		Guard:          c.dedup,
		Quotes:         c.board,
		Bus:            deps.SignalBus,
		Notifier:       c.async,
		IdempotencyTTL: cfg.Signal.IdempotencyTTL.Duration,
	}, a.logger)
	c.kill = service.NewPanicService(st, deps.LockManager, deps.SignalBus, c.async, a.logger)
	c.stats = service.NewStatsService(st, a.logger)
	c.positions = service.NewPositionService(deps.Positions, st.Partials, a.logger)
	c.scheduler = pipeline.NewScheduler(a.logger)
	return c
}

// EngineMode runs the price feeds, the risk engine, the heartbeat monitor and
// the maintenance scheduler without the HTTP API.
func (a *App) EngineMode(ctx context.Context, c *components) error {
	a.logger.InfoContext(ctx, "starting engine mode")
	g, ctx := errgroup.WithContext(ctx)
	if err := a.startEngine(ctx, g, c); err != nil {
		return err
	}
	return g.Wait()
}

// APIMode serves the HTTP API and dashboard hub. Signals are still accepted
// and exit signals evaluated, but no feed or scheduled job runs here.
func (a *App) APIMode(ctx context.Context, c *components) error {
	a.logger.InfoContext(ctx, "starting api mode")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.async.Run(ctx) })
	a.startHTTPServer(ctx, g, c)
	return g.Wait()
}

// FullMode runs everything in one process.
func (a *App) FullMode(ctx context.Context, c *components) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	if err := a.startEngine(ctx, g, c); err != nil {
		return err
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, c)
	}
	return g.Wait()
}

func (a *App) startEngine(ctx context.Context, g *errgroup.Group, c *components) error {
	cfg := a.cfg
	deps := c.deps

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, cfg.Scheduler.ArchiveRetentionDays, a.logger)
	}
	err := pipeline.Register(c.scheduler, pipeline.Jobs{
		Cooldowns: c.cooldowns,
		Equity:    c.stats,
		Archiver:  archiver,
		Dedup:     c.dedup,
	}, pipeline.Specs{
		CooldownSweep:  cfg.Scheduler.CooldownSweepCron,
		EquitySnapshot: cfg.Scheduler.EquitySnapshotCron,
		Archive:        cfg.Scheduler.ArchiveCron,
		DedupCleanup:   cfg.Scheduler.DedupCleanupCron,
	})
	if err != nil {
		return err
	}

	g.Go(func() error { return c.async.Run(ctx) })
	g.Go(func() error { return c.engine.Run(ctx, c.ticks) })
	g.Go(func() error { return c.heartbeat.Run(ctx) })
	g.Go(func() error { return c.scheduler.Run(ctx) })

	poller := feed.NewPoller(
		deps.Positions,
		yahoo.NewClient(cfg.Feed.YahooBaseURL, cfg.Feed.PollTimeout.Duration),
		c.agg, deps.Health,
		cfg.Feed.PollInterval.Duration, cfg.Feed.PollTimeout.Duration,
		a.logger,
	)
	g.Go(func() error { return poller.Run(ctx) })

	if cfg.Feed.StreamEnabled {
		streams := feed.NewStreamManager(
			deps.Positions,
			binance.NewTradeStream(cfg.Feed.BinanceWSURL, cfg.Feed.StreamReadTimeout.Duration),
			c.agg, deps.Health,
			cfg.Feed.StreamSymbols, cfg.Feed.ReconcileInterval.Duration,
			a.logger,
		)
		c.streams = streams
		g.Go(func() error { return streams.Run(ctx) })
	}
	return nil
}

// noStreams stands in for the stream manager in processes that do not run
// one.
type noStreams struct{}

func (noStreams) Streaming() []string { return nil }

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, c *components) {
	cfg := a.cfg
	deps := c.deps

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           cfg.Mode,
		StartedAt:      a.startedAt,
		AllowedOrigins: cfg.Server.CORSOrigins,
	})
	g.Go(func() error { return hub.Run(ctx) })

	h := server.Handlers{
		Health:     handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:     handler.NewStatusHandler(cfg.Mode, a.startedAt, c.accounts),
		Webhook:    handler.NewWebhookHandler(c.signals, deps.Stores.Signals, cfg.Signal.WebhookSecret, a.logger),
		Positions:  handler.NewPositionHandler(c.positions, a.logger),
		Stats:      handler.NewStatsHandler(c.stats, a.logger),
		Accounts:   handler.NewAccountHandler(c.accounts, c.kill, a.logger),
		Cooldowns:  handler.NewCooldownHandler(c.cooldowns, a.logger),
		Slippage:   handler.NewSlippageHandler(c.slippage, a.logger),
		Panic:      handler.NewPanicHandler(c.kill, a.logger),
		Heartbeat:  handler.NewHeartbeatHandler(c.heartbeat, a.logger),
		Feed:       handler.NewFeedHandler(c.board, deps.Health, c.streams, cfg.Heartbeat.StaleAfter.Duration, a.logger),
		Audit:      handler.NewAuditHandler(deps.Stores.Audit, a.logger),
		SignalFeed: handler.NewSignalFeedHandler(deps.SignalBus, a.logger),
		Jobs:       handler.NewPipelineHandler(c.scheduler, a.logger),
	}
	if deps.BlobReader != nil {
		h.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:             cfg.Server.Port,
		CORSOrigins:      cfg.Server.CORSOrigins,
		APIKey:           cfg.Server.APIKey,
		Limiter:          deps.RateLimiter,
		WebhookPerMinute: cfg.Signal.RateLimitPerMinute,
	}, h, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down", slog.Int("port", cfg.Server.Port))
		return srv.Shutdown(shutCtx)
	})
}
