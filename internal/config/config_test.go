package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Minute, cfg.Risk.CooldownDuration.Duration)
	assert.Equal(t, 5*time.Second, cfg.Feed.PollInterval.Duration)
	assert.InDelta(t, 0.1, cfg.Signal.SlippageTolerancePct, 1e-9)
	assert.False(t, cfg.Signal.FillFromQuote)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signalguard.toml")
	body := `
mode = "engine"

[risk]
trailing_pct = 1.5
cooldown_duration = "30m"

[[accounts]]
id = 7
name = "paper"
auto_entry = true
simulation_mode = true
trailing = true
position_notional = 1000
starting_equity = 10000
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("SIGNALGUARD_REDIS_ADDR", "redis:6380")
	t.Setenv("SIGNALGUARD_FEED_STREAM_SYMBOLS", "BTCUSD, ETHUSD ,")
	t.Setenv("SIGNALGUARD_RISK_WORKERS", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "engine", cfg.Mode)
	assert.InDelta(t, 1.5, cfg.Risk.TrailingPct, 1e-9)
	assert.Equal(t, 30*time.Minute, cfg.Risk.CooldownDuration.Duration)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, cfg.Feed.StreamSymbols)
	assert.Equal(t, 4, cfg.Risk.Workers, "unparsable override keeps the default")
	require.Len(t, cfg.Accounts, 1)
	assert.EqualValues(t, 7, cfg.Accounts[0].ID)
	assert.True(t, cfg.Accounts[0].Trailing)
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"
	cfg.Risk.TP1Fraction = 0
	cfg.Accounts = []AccountConfig{
		{ID: 1, PositionNotional: 100},
		{ID: 1, PositionNotional: 0},
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "backtest"`)
	assert.Contains(t, msg, "tp1_fraction")
	assert.Contains(t, msg, "accounts[1]: duplicate id 1")
	assert.Contains(t, msg, "accounts[1]: position_notional must be > 0")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Signal.WebhookSecret = "s3cr3t"
	cfg.Server.CORSOrigins = []string{"https://a.example"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Signal.WebhookSecret)
	assert.Empty(t, out.Server.APIKey, "empty secrets stay empty")
	assert.Equal(t, "hunter2", cfg.Postgres.Password)

	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, "https://a.example", cfg.Server.CORSOrigins[0])
}
