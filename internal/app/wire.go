package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/signalguard/internal/blob/s3"
	"github.com/alanyoungcy/signalguard/internal/cache/redis"
	"github.com/alanyoungcy/signalguard/internal/config"
	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/notify"
	"github.com/alanyoungcy/signalguard/internal/server/handler"
	"github.com/alanyoungcy/signalguard/internal/service"
	"github.com/alanyoungcy/signalguard/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Stores    service.Stores
	Positions *postgres.PositionStore
	Health    *postgres.HealthStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Idempotency domain.IdempotencyGuard
	SignalBus   domain.SignalBus

	// Blob storage; nil when s3 is disabled.
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks ping each backing service for /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.HealthChecks["postgres"] = pgClient.Ping

	if cfg.Postgres.RunMigrations {
		applied, err := pgClient.RunMigrations(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.InfoContext(ctx, "migrations applied", slog.Any("files", applied))
		}
	}

	pool := pgClient.Pool()
	deps.Positions = postgres.NewPositionStore(pool)
	deps.Health = postgres.NewHealthStore(pool)
	deps.Stores = service.Stores{
		Tx:        postgres.NewTxManager(pool),
		Accounts:  postgres.NewAccountStore(pool),
		Positions: deps.Positions,
		Partials:  postgres.NewPartialCloseStore(pool),
		TradeLogs: postgres.NewTradeLogStore(pool),
		Stats:     postgres.NewStatsStore(pool),
		Equity:    postgres.NewEquityStore(pool),
		Cooldowns: postgres.NewCooldownStore(pool),
		Slippage:  postgres.NewSlippageStore(pool),
		Signals:   postgres.NewSignalLogStore(pool),
		Health:    deps.Health,
		Audit:     postgres.NewAuditStore(pool),
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.HealthChecks["redis"] = redisClient.Ping

	redisTTL := time.Duration(0)
	if cfg.Redis.CacheTTLMinutes > 0 {
		redisTTL = time.Duration(cfg.Redis.CacheTTLMinutes) * time.Minute
	}
	streamMaxLen := int64(10000)
	if cfg.Redis.StreamMaxLen > 0 {
		streamMaxLen = int64(cfg.Redis.StreamMaxLen)
	}

	deps.PriceCache = redis.NewPriceCache(redisClient, redisTTL)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Idempotency = redis.NewIdempotencyGuard(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, streamMaxLen)

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.HealthChecks["s3"] = s3Client.Health
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Positions,
			postgres.NewPartialCloseStore(pool),
			postgres.NewTradeLogStore(pool),
			deps.Stores.Audit,
			0,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
