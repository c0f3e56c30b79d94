// Package app provides the top-level application lifecycle management for
// signalguard. It wires together all dependencies (stores, caches, blob
// storage, services, feeds and notifications) and starts the goroutines of
// the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/signalguard/internal/config"
	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
	closers   []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app")),
		startedAt: time.Now().UTC(),
	}
}

// Run is the main entry point. It wires all dependencies, seeds the
// configured accounts, starts the goroutines of the selected mode and blocks
// until the context is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	c := a.build(deps)

	accounts := make([]domain.Account, 0, len(a.cfg.Accounts))
	for _, ac := range a.cfg.Accounts {
		accounts = append(accounts, service.AccountFromConfig(ac))
	}
	if err := c.accounts.EnsureAccounts(ctx, accounts); err != nil {
		return fmt.Errorf("app: seed accounts: %w", err)
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "engine":
		return a.EngineMode(ctx, c)
	case "api":
		return a.APIMode(ctx, c)
	case "full":
		return a.FullMode(ctx, c)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
