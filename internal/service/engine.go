package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/metrics"
	"github.com/alanyoungcy/signalguard/internal/notify"
	"github.com/alanyoungcy/signalguard/internal/risk"
)

// EngineConfig tunes the risk engine.
type EngineConfig struct {
	Params           risk.Params
	CooldownDuration time.Duration
	Workers          int
	ShardBuffer      int
	Alive            func() // called by a worker after every tick it handles
}

// Engine re-evaluates open positions on every price tick. Each position is
// processed in its own transaction holding the row lock, so a failure on
// one position never affects the others.
type Engine struct {
	st        Stores
	cooldowns *CooldownService
	bus       domain.SignalBus
	notifier  Notifier
	cfg       EngineConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewEngine creates an Engine. bus and notifier may be nil.
func NewEngine(st Stores, cooldowns *CooldownService, bus domain.SignalBus, notifier Notifier, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ShardBuffer < 1 {
		cfg.ShardBuffer = 64
	}
	return &Engine{
		st:        st,
		cooldowns: cooldowns,
		bus:       bus,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "engine")),
	}
}

// evalMode selects which rule set a tick applies.
type evalMode int

const (
	modeTick        evalMode = iota // per-account rules
	modeSignalClose                 // simple stop/target only
)

// tickResult carries what happened inside the transaction so side effects can
// run after commit.
type tickResult struct {
	pos      domain.Position
	outcome  risk.Outcome
	cooldown *domain.Cooldown
}

// Run consumes ticks until ctx is cancelled or the channel closes. Ticks are
// sharded by symbol so one symbol is always handled by the same worker, in
// arrival order.
func (e *Engine) Run(ctx context.Context, ticks <-chan domain.PriceTick) error {
	g, gctx := errgroup.WithContext(ctx)
	shards := make([]chan domain.PriceTick, e.cfg.Workers)
	for i := range shards {
		ch := make(chan domain.PriceTick, e.cfg.ShardBuffer)
		shards[i] = ch
		g.Go(func() error {
			for t := range ch {
				e.handleTick(gctx, t)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return nil
			case t, ok := <-ticks:
				if !ok {
					return nil
				}
				select {
				case shards[shardFor(t.Symbol, len(shards))] <- t:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	e.logger.InfoContext(ctx, "risk engine started", slog.Int("workers", e.cfg.Workers))
	err := g.Wait()
	e.logger.InfoContext(ctx, "risk engine stopped")
	return err
}

func shardFor(symbol string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(n))
}

func (e *Engine) handleTick(ctx context.Context, t domain.PriceTick) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if _, err := e.OnPriceTick(ctx, t.Symbol, t.Price); err != nil {
		e.logger.WarnContext(ctx, "tick failed",
			slog.String("symbol", t.Symbol),
			slog.String("error", err.Error()),
		)
	}
	metrics.TicksProcessed.WithLabelValues(t.Source).Inc()
	metrics.TickLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
	if e.cfg.Alive != nil {
		e.cfg.Alive()
	}
}

// OnPriceTick applies price to every open position on symbol and returns how
// many were evaluated. Non-positive prices are ignored.
func (e *Engine) OnPriceTick(ctx context.Context, symbol string, price float64) (int, error) {
	return e.evaluateSymbol(ctx, symbol, price, modeTick)
}

// OnSignalClose applies the simple stop-loss / take-profit rule at a signal's
// price to the symbol's open positions whose account has auto-close enabled.
func (e *Engine) OnSignalClose(ctx context.Context, symbol string, price float64) (int, error) {
	return e.evaluateSymbol(ctx, symbol, price, modeSignalClose)
}

func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, price float64, mode evalMode) (int, error) {
	if price <= 0 {
		return 0, nil
	}
	open, err := e.st.Positions.ListOpenBySymbol(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("engine: list open %q: %w", symbol, err)
	}
	n := 0
	for _, p := range open {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		res, err := e.evaluate(ctx, p.ID, price, mode)
		if err != nil {
			metrics.PositionErrors.Inc()
			e.logger.ErrorContext(ctx, "position evaluation failed",
				slog.String("position_id", p.ID),
				slog.String("symbol", symbol),
				slog.Float64("price", price),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
		if res != nil {
			e.afterCommit(ctx, res)
		}
	}
	return n, nil
}

// evaluate runs one position through the rules inside a transaction. It
// returns nil when the position was already closed or has no account.
func (e *Engine) evaluate(ctx context.Context, id string, price float64, mode evalMode) (*tickResult, error) {
	var res *tickResult
	err := e.st.Tx.InTx(ctx, func(ctx context.Context) error {
		pos, err := e.st.Positions.GetForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("lock position: %w", err)
		}
		if !pos.IsOpen() {
			return nil
		}
		acct, err := e.st.Accounts.GetByID(ctx, pos.AccountID)
		if errors.Is(err, domain.ErrNotFound) {
			e.logger.WarnContext(ctx, "position without account config skipped",
				slog.String("position_id", id),
				slog.Int64("account_id", pos.AccountID),
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load account %d: %w", pos.AccountID, err)
		}

		now := e.now()
		var out risk.Outcome
		switch {
		case mode == modeSignalClose:
			if !acct.AutoCloseEnabled {
				return nil
			}
			out = risk.ApplySimple(&pos, price, limitsOf(acct), now)
		case acct.TrailingEnabled:
			out = risk.Apply(&pos, price, e.cfg.Params, now)
		case acct.AutoCloseEnabled:
			out = risk.ApplySimple(&pos, price, limitsOf(acct), now)
		default:
			risk.Mark(&pos, price, now)
		}

		if err := e.book(ctx, acct, &pos, out, now); err != nil {
			return err
		}
		res = &tickResult{pos: pos, outcome: out}

		if out.Closed && out.StopLoss {
			c, err := e.cooldowns.Activate(ctx, pos.Ticker,
				fmt.Sprintf("%s on %s position %s", pos.CloseReason, pos.Side, pos.ID), e.cfg.CooldownDuration)
			if err != nil {
				return err
			}
			res.cooldown = &c
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("engine: evaluate position %s: %w", id, err)
	}
	return res, nil
}

func limitsOf(a domain.Account) risk.Limits {
	return risk.Limits{StopLossPct: a.StopLossPct, TakeProfitPct: a.TakeProfitPct}
}

// book persists the outcome of a tick: partial slices, the final leg, stats
// and the updated position row.
func (e *Engine) book(ctx context.Context, acct domain.Account, pos *domain.Position, out risk.Outcome, now time.Time) error {
	if len(out.Partials) > 0 || out.Closed {
		stats, err := e.st.Stats.GetForUpdate(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("lock stats %d: %w", acct.ID, err)
		}
		for _, p := range out.Partials {
			if err := e.st.Partials.Insert(ctx, domain.PartialClose{
				PositionID: pos.ID,
				Quantity:   p.Quantity,
				Price:      p.Price,
				PnL:        p.PnL,
				Reason:     p.Reason,
				ClosedAt:   now,
			}); err != nil {
				return fmt.Errorf("insert partial %s: %w", p.Reason, err)
			}
			if err := e.st.TradeLogs.Insert(ctx, domain.TradeLog{
				PositionID: pos.ID,
				AccountID:  pos.AccountID,
				Action:     domain.TradeActionPartialClose,
				Price:      p.Price,
				Quantity:   p.Quantity,
				Reason:     p.Reason,
				CreatedAt:  now,
			}); err != nil {
				return fmt.Errorf("log partial %s: %w", p.Reason, err)
			}
			risk.RecordPartial(&stats, p.PnL, acct.StartingEquity, now)
		}
		if out.Closed {
			if err := e.st.TradeLogs.Insert(ctx, domain.TradeLog{
				PositionID: pos.ID,
				AccountID:  pos.AccountID,
				Action:     domain.TradeActionClose,
				Price:      pos.ExitPrice,
				Quantity:   out.CloseQuantity,
				Reason:     pos.CloseReason,
				CreatedAt:  now,
			}); err != nil {
				return fmt.Errorf("log close: %w", err)
			}
			risk.RecordClose(&stats, out.ClosePnL, pos.RealizedPnL, acct.StartingEquity, now)
			if err := e.st.Equity.Insert(ctx, domain.EquitySnapshot{
				AccountID: acct.ID,
				Equity:    risk.Equity(stats, acct.StartingEquity),
				At:        now,
			}); err != nil {
				return fmt.Errorf("snapshot equity: %w", err)
			}
		}
		if err := e.st.Stats.Save(ctx, stats); err != nil {
			return fmt.Errorf("save stats %d: %w", acct.ID, err)
		}
	}
	if err := e.st.Positions.Update(ctx, *pos); err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	return nil
}

// afterCommit records metrics and emits notifications for a committed tick.
func (e *Engine) afterCommit(ctx context.Context, res *tickResult) {
	pos, out := res.pos, res.outcome
	event := "updated"

	for _, p := range out.Partials {
		metrics.Closes.WithLabelValues("partial").Inc()
		metrics.RealizedPnL.Add(p.PnL)
		send(ctx, e.notifier, notify.PartialClosed(pos, p.Reason, p.Quantity, p.Price, p.PnL), e.logger)
		event = "partial"
	}
	if out.BreakEvenActivated && !out.Closed {
		send(ctx, e.notifier, notify.BreakEven(pos), e.logger)
	}
	if out.Closed {
		event = "closed"
		metrics.Closes.WithLabelValues(closeKind(pos.CloseReason, out)).Inc()
		metrics.RealizedPnL.Add(out.ClosePnL)
		e.logger.InfoContext(ctx, "position closed",
			slog.String("position_id", pos.ID),
			slog.String("ticker", pos.Ticker),
			slog.String("reason", pos.CloseReason),
			slog.Float64("exit_price", pos.ExitPrice),
			slog.Float64("realized_pnl", pos.RealizedPnL),
		)
		send(ctx, e.notifier, notify.PositionClosed(pos), e.logger)
	}
	if res.cooldown != nil {
		send(ctx, e.notifier, notify.CooldownActivated(pos.Ticker, res.cooldown.CooldownUntil, res.cooldown.Reason), e.logger)
	}
	publish(ctx, e.bus, domain.ChannelPositions, PositionEvent{Event: event, Position: pos}, e.logger)
}

func closeKind(reason string, out risk.Outcome) string {
	switch {
	case out.StopLoss:
		return "stop_loss"
	case reason == domain.CloseReasonTrailingStop:
		return "trailing"
	default:
		return "take_profit"
	}
}
