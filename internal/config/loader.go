package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SIGNALGUARD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SIGNALGUARD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SIGNALGUARD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SIGNALGUARD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SIGNALGUARD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SIGNALGUARD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SIGNALGUARD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SIGNALGUARD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SIGNALGUARD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SIGNALGUARD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SIGNALGUARD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SIGNALGUARD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SIGNALGUARD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIGNALGUARD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIGNALGUARD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIGNALGUARD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SIGNALGUARD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SIGNALGUARD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SIGNALGUARD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SIGNALGUARD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SIGNALGUARD_S3_REGION")
	setStr(&cfg.S3.Bucket, "SIGNALGUARD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SIGNALGUARD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SIGNALGUARD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SIGNALGUARD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SIGNALGUARD_S3_FORCE_PATH_STYLE")

	// ── Risk ──
	setFloat64(&cfg.Risk.TrailingPct, "SIGNALGUARD_RISK_TRAILING_PCT")
	setFloat64(&cfg.Risk.FloorPct, "SIGNALGUARD_RISK_FLOOR_PCT")
	setFloat64(&cfg.Risk.BreakEvenPct, "SIGNALGUARD_RISK_BREAK_EVEN_PCT")
	setFloat64(&cfg.Risk.CommissionRate, "SIGNALGUARD_RISK_COMMISSION_RATE")
	setFloat64(&cfg.Risk.TP1Pct, "SIGNALGUARD_RISK_TP1_PCT")
	setFloat64(&cfg.Risk.TP1Fraction, "SIGNALGUARD_RISK_TP1_FRACTION")
	setFloat64(&cfg.Risk.TP2Pct, "SIGNALGUARD_RISK_TP2_PCT")
	setDuration(&cfg.Risk.CooldownDuration, "SIGNALGUARD_RISK_COOLDOWN_DURATION")
	setInt(&cfg.Risk.Workers, "SIGNALGUARD_RISK_WORKERS")

	// ── Feed ──
	setDuration(&cfg.Feed.PollInterval, "SIGNALGUARD_FEED_POLL_INTERVAL")
	setDuration(&cfg.Feed.PollTimeout, "SIGNALGUARD_FEED_POLL_TIMEOUT")
	setStr(&cfg.Feed.YahooBaseURL, "SIGNALGUARD_FEED_YAHOO_BASE_URL")
	setBool(&cfg.Feed.StreamEnabled, "SIGNALGUARD_FEED_STREAM_ENABLED")
	setStr(&cfg.Feed.BinanceWSURL, "SIGNALGUARD_FEED_BINANCE_WS_URL")
	setStringSlice(&cfg.Feed.StreamSymbols, "SIGNALGUARD_FEED_STREAM_SYMBOLS")

	// ── Signal ──
	setStr(&cfg.Signal.WebhookSecret, "SIGNALGUARD_SIGNAL_WEBHOOK_SECRET")
	setDuration(&cfg.Signal.IdempotencyTTL, "SIGNALGUARD_SIGNAL_IDEMPOTENCY_TTL")
	setInt(&cfg.Signal.RateLimitPerMinute, "SIGNALGUARD_SIGNAL_RATE_LIMIT_PER_MINUTE")
	setFloat64(&cfg.Signal.SlippageTolerancePct, "SIGNALGUARD_SIGNAL_SLIPPAGE_TOLERANCE_PCT")
	setBool(&cfg.Signal.FillFromQuote, "SIGNALGUARD_SIGNAL_FILL_FROM_QUOTE")

	// ── Heartbeat ──
	setDuration(&cfg.Heartbeat.Interval, "SIGNALGUARD_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Heartbeat.StaleAfter, "SIGNALGUARD_HEARTBEAT_STALE_AFTER")
	setDuration(&cfg.Heartbeat.WarnAfter, "SIGNALGUARD_HEARTBEAT_WARN_AFTER")

	// ── Scheduler ──
	setStr(&cfg.Scheduler.CooldownSweepCron, "SIGNALGUARD_SCHEDULER_COOLDOWN_SWEEP_CRON")
	setStr(&cfg.Scheduler.EquitySnapshotCron, "SIGNALGUARD_SCHEDULER_EQUITY_SNAPSHOT_CRON")
	setStr(&cfg.Scheduler.ArchiveCron, "SIGNALGUARD_SCHEDULER_ARCHIVE_CRON")
	setInt(&cfg.Scheduler.ArchiveRetentionDays, "SIGNALGUARD_SCHEDULER_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Scheduler.DedupCleanupCron, "SIGNALGUARD_SCHEDULER_DEDUP_CLEANUP_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SIGNALGUARD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SIGNALGUARD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SIGNALGUARD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SIGNALGUARD_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIGNALGUARD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SIGNALGUARD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIGNALGUARD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SIGNALGUARD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SIGNALGUARD_MODE")
	setStr(&cfg.LogLevel, "SIGNALGUARD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
