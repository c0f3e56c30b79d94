// Package service orchestrates the risk engine and its safety guards on top of
// the stores: signal intake, the per-tick engine, cooldowns, slippage
// auditing, the kill switch, the heartbeat and account analytics.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/notify"
)

// Notifier delivers operator alerts. *notify.Notifier and *notify.Async
// satisfy it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Stores bundles the persistence ports the services share.
type Stores struct {
	Tx        domain.TxManager
	Accounts  domain.AccountStore
	Positions domain.PositionStore
	Partials  domain.PartialCloseStore
	TradeLogs domain.TradeLogStore
	Stats     domain.StatsStore
	Equity    domain.EquityStore
	Cooldowns domain.CooldownStore
	Slippage  domain.SlippageStore
	Signals   domain.SignalLogStore
	Health    domain.HealthStore
	Audit     domain.AuditStore
}

// send delivers m when a notifier is configured; failures are only logged.
func send(ctx context.Context, n Notifier, m notify.Message, logger *slog.Logger) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, m.Event, m.Title, m.Body); err != nil {
		logger.WarnContext(ctx, "notification failed",
			slog.String("event", m.Event),
			slog.String("error", err.Error()),
		)
	}
}

// publish marshals v onto a bus channel; failures are only logged.
func publish(ctx context.Context, bus domain.SignalBus, channel string, v any, logger *slog.Logger) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logger.WarnContext(ctx, "marshal bus event failed", slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "publish bus event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// audit writes an audit row; failures are only logged.
func audit(ctx context.Context, store domain.AuditStore, event string, detail map[string]any, logger *slog.Logger) {
	if store == nil {
		return
	}
	if err := store.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// PositionEvent is published on the positions channel whenever a position
// changes.
type PositionEvent struct {
	Event    string          `json:"event"` // opened, updated, partial, closed
	Position domain.Position `json:"position"`
}
