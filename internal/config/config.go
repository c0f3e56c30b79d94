// Package config defines the top-level configuration for signalguard and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SIGNALGUARD_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Risk      RiskConfig      `toml:"risk"`
	Feed      FeedConfig      `toml:"feed"`
	Signal    SignalConfig    `toml:"signal"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Accounts  []AccountConfig `toml:"accounts"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
	StreamMaxLen    int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters used by the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RiskConfig holds the position rule parameters. Percentages are in percent;
// commission_rate is a fraction.
type RiskConfig struct {
	TrailingPct      float64  `toml:"trailing_pct"`
	FloorPct         float64  `toml:"floor_pct"`
	BreakEvenPct     float64  `toml:"break_even_pct"`
	CommissionRate   float64  `toml:"commission_rate"`
	TP1Pct           float64  `toml:"tp1_pct"`
	TP1Fraction      float64  `toml:"tp1_fraction"`
	TP2Pct           float64  `toml:"tp2_pct"`
	CooldownDuration duration `toml:"cooldown_duration"`
	Workers          int      `toml:"workers"`
	TickBuffer       int      `toml:"tick_buffer"`
}

// FeedConfig holds price-source parameters.
type FeedConfig struct {
	PollInterval      duration `toml:"poll_interval"`
	PollTimeout       duration `toml:"poll_timeout"`
	YahooBaseURL      string   `toml:"yahoo_base_url"`
	StreamEnabled     bool     `toml:"stream_enabled"`
	BinanceWSURL      string   `toml:"binance_ws_url"`
	StreamSymbols     []string `toml:"stream_symbols"`
	ReconcileInterval duration `toml:"reconcile_interval"`
	StreamReadTimeout duration `toml:"stream_read_timeout"`
}

// SignalConfig holds webhook intake parameters. Entries fill at the signal
// price unless FillFromQuote is set, in which case a fresh feed quote wins.
type SignalConfig struct {
	WebhookSecret        string   `toml:"webhook_secret"`
	IdempotencyTTL       duration `toml:"idempotency_ttl"`
	RateLimitPerMinute   int      `toml:"rate_limit_per_minute"`
	SlippageTolerancePct float64  `toml:"slippage_tolerance_pct"`
	FillFromQuote        bool     `toml:"fill_from_quote"`
}

// HeartbeatConfig holds liveness monitor parameters.
type HeartbeatConfig struct {
	Interval   duration `toml:"interval"`
	StaleAfter duration `toml:"stale_after"`
	WarnAfter  duration `toml:"warn_after"`
}

// SchedulerConfig holds cron expressions for periodic maintenance jobs.
// Expressions use the six-field form with seconds or descriptors like
// "@every 1m".
type SchedulerConfig struct {
	CooldownSweepCron    string `toml:"cooldown_sweep_cron"`
	EquitySnapshotCron   string `toml:"equity_snapshot_cron"`
	ArchiveCron          string `toml:"archive_cron"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
	DedupCleanupCron     string `toml:"dedup_cleanup_cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// AccountConfig seeds one trading account at startup. Existing accounts are
// never overwritten.
type AccountConfig struct {
	ID               int64   `toml:"id"`
	Name             string  `toml:"name"`
	AutoEntry        bool    `toml:"auto_entry"`
	SimulationMode   bool    `toml:"simulation_mode"`
	AutoClose        bool    `toml:"auto_close"`
	Trailing         bool    `toml:"trailing"`
	PositionNotional float64 `toml:"position_notional"`
	StopLossPct      float64 `toml:"stop_loss_pct"`
	TakeProfitPct    float64 `toml:"take_profit_pct"`
	MaxOpenExposure  float64 `toml:"max_open_exposure"`
	StartingEquity   float64 `toml:"starting_equity"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "signalguard",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			CacheTTLMinutes: 60,
			StreamMaxLen:    10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "signalguard-archive",
			ForcePathStyle: true,
		},
		Risk: RiskConfig{
			TrailingPct:      1.0,
			FloorPct:         2.0,
			BreakEvenPct:     1.5,
			CommissionRate:   0.001,
			TP1Pct:           2.0,
			TP1Fraction:      0.5,
			TP2Pct:           5.0,
			CooldownDuration: duration{60 * time.Minute},
			Workers:          4,
			TickBuffer:       256,
		},
		Feed: FeedConfig{
			PollInterval:      duration{5 * time.Second},
			PollTimeout:       duration{10 * time.Second},
			YahooBaseURL:      "https://query1.finance.yahoo.com",
			StreamEnabled:     true,
			BinanceWSURL:      "wss://stream.binance.com:9443/ws",
			StreamSymbols:     []string{"BTCUSD", "ETHUSD", "BNBUSD", "ADAUSD", "SOLUSD", "XRPUSD", "DOGEUSD"},
			ReconcileInterval: duration{10 * time.Second},
			StreamReadTimeout: duration{10 * time.Second},
		},
		Signal: SignalConfig{
			IdempotencyTTL:       duration{24 * time.Hour},
			RateLimitPerMinute:   120,
			SlippageTolerancePct: 0.1,
		},
		Heartbeat: HeartbeatConfig{
			Interval:   duration{30 * time.Second},
			StaleAfter: duration{60 * time.Second},
			WarnAfter:  duration{30 * time.Second},
		},
		Scheduler: SchedulerConfig{
			CooldownSweepCron:    "@every 1m",
			EquitySnapshotCron:   "@hourly",
			ArchiveCron:          "0 0 3 * * *",
			ArchiveRetentionDays: 90,
			DedupCleanupCron:     "@every 10m",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Notify: NotifyConfig{
			Events: []string{},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine": true,
	"api":    true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for obvious mistakes and returns an error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, api, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}

	// Risk
	if c.Risk.TrailingPct <= 0 {
		errs = append(errs, "risk: trailing_pct must be > 0")
	}
	if c.Risk.FloorPct <= 0 {
		errs = append(errs, "risk: floor_pct must be > 0")
	}
	if c.Risk.TP1Fraction <= 0 || c.Risk.TP1Fraction > 1 {
		errs = append(errs, fmt.Sprintf("risk: tp1_fraction must be in (0, 1], got %g", c.Risk.TP1Fraction))
	}
	if c.Risk.TP2Pct <= c.Risk.TP1Pct {
		errs = append(errs, "risk: tp2_pct must be greater than tp1_pct")
	}
	if c.Risk.CommissionRate < 0 || c.Risk.CommissionRate >= 1 {
		errs = append(errs, "risk: commission_rate must be a fraction in [0, 1)")
	}
	if c.Risk.CooldownDuration.Duration <= 0 {
		errs = append(errs, "risk: cooldown_duration must be > 0")
	}
	if c.Risk.Workers < 1 {
		errs = append(errs, "risk: workers must be >= 1")
	}

	// Feed
	if c.Feed.PollInterval.Duration <= 0 {
		errs = append(errs, "feed: poll_interval must be > 0")
	}
	if c.Feed.PollTimeout.Duration <= 0 {
		errs = append(errs, "feed: poll_timeout must be > 0")
	}
	if c.Feed.StreamEnabled && c.Feed.BinanceWSURL == "" {
		errs = append(errs, "feed: binance_ws_url must not be empty when stream_enabled")
	}

	// Signal
	if c.Signal.SlippageTolerancePct <= 0 {
		errs = append(errs, "signal: slippage_tolerance_pct must be > 0")
	}

	// Heartbeat
	if c.Heartbeat.Interval.Duration <= 0 {
		errs = append(errs, "heartbeat: interval must be > 0")
	}
	if c.Heartbeat.WarnAfter.Duration <= 0 || c.Heartbeat.StaleAfter.Duration <= 0 {
		errs = append(errs, "heartbeat: warn_after and stale_after must be > 0")
	}

	// Accounts
	seen := make(map[int64]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.ID <= 0 {
			errs = append(errs, fmt.Sprintf("accounts[%d]: id must be > 0", i))
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("accounts[%d]: duplicate id %d", i, a.ID))
		}
		seen[a.ID] = true
		if a.PositionNotional <= 0 {
			errs = append(errs, fmt.Sprintf("accounts[%d]: position_notional must be > 0", i))
		}
		if a.MaxOpenExposure < 0 {
			errs = append(errs, fmt.Sprintf("accounts[%d]: max_open_exposure must be >= 0", i))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
