package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/executor"
	"github.com/alanyoungcy/signalguard/internal/metrics"
	"github.com/alanyoungcy/signalguard/internal/notify"
)

// FillSimulator executes a simulated market order.
type FillSimulator interface {
	Fill(ctx context.Context, ticker string, side domain.Side, qty, alertPrice float64) (executor.Fill, error)
}

// QuoteRecorder receives prices that arrive with signals so the dashboard
// board reflects them. *feed.Board satisfies it.
type QuoteRecorder interface {
	Update(symbol string, price float64, source string, at time.Time) domain.PriceQuote
}

// SignalResult is returned to the webhook caller.
type SignalResult struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	Outcome     string   `json:"outcome"`
	Opened      int      `json:"opened"`
	PositionIDs []string `json:"position_ids"`
	Evaluated   int      `json:"evaluated,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// SignalService is the entry point for inbound trading signals.
type SignalService struct {
	st             Stores
	engine         *Engine
	cooldowns      *CooldownService
	slippage       *SlippageService
	sizer          Sizer
	fills          FillSimulator
	guard          domain.IdempotencyGuard
	quotes         QuoteRecorder
	bus            domain.SignalBus
	notifier       Notifier
	idempotencyTTL time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// SignalDeps are the collaborators of a SignalService. Guard, Quotes, Bus and
// Notifier are optional.
type SignalDeps struct {
	Engine         *Engine
	Cooldowns      *CooldownService
	Slippage       *SlippageService
	Sizer          Sizer
	Fills          FillSimulator
	Guard          domain.IdempotencyGuard
	Quotes         QuoteRecorder
	Bus            domain.SignalBus
	Notifier       Notifier
	IdempotencyTTL time.Duration
}

// NewSignalService creates a SignalService.
func NewSignalService(st Stores, deps SignalDeps, logger *slog.Logger) *SignalService {
	ttl := deps.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	sizer := deps.Sizer
	if sizer == nil {
		sizer = NotionalSizer{}
	}
	return &SignalService{
		st:             st,
		engine:         deps.Engine,
		cooldowns:      deps.Cooldowns,
		slippage:       deps.Slippage,
		sizer:          sizer,
		fills:          deps.Fills,
		guard:          deps.Guard,
		quotes:         deps.Quotes,
		bus:            deps.Bus,
		notifier:       deps.Notifier,
		idempotencyTTL: ttl,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         logger.With(slog.String("component", "signal")),
	}
}

// HandleSignal validates and routes one signal. A signal without an action is
// a price update; BUY/SELL (or LONG/SHORT) opens simulated positions on every
// account accepting entries, unless the ticker is in cooldown.
func (s *SignalService) HandleSignal(ctx context.Context, sig domain.Signal) (SignalResult, error) {
	sig.Ticker = strings.ToUpper(strings.TrimSpace(sig.Ticker))
	sig.Action = strings.ToUpper(strings.TrimSpace(sig.Action))
	sig.IdempotencyKey = strings.TrimSpace(sig.IdempotencyKey)
	if sig.ReceivedAt.IsZero() {
		sig.ReceivedAt = s.now()
	}

	if err := validate(sig); err != nil {
		metrics.Signals.WithLabelValues(domain.SignalOutcomeRejected).Inc()
		return SignalResult{Outcome: domain.SignalOutcomeRejected, Message: err.Error()}, err
	}

	if sig.Action == "" {
		return s.handleTick(ctx, sig)
	}
	side, ok := domain.ParseSide(sig.Action)
	if !ok {
		metrics.Signals.WithLabelValues(domain.SignalOutcomeRejected).Inc()
		err := fmt.Errorf("signal: unknown action %q: %w", sig.Action, domain.ErrInvalidSignal)
		return SignalResult{Outcome: domain.SignalOutcomeRejected, Message: err.Error()}, err
	}
	return s.handleEntry(ctx, sig, side)
}

func validate(sig domain.Signal) error {
	if sig.Ticker == "" {
		return fmt.Errorf("signal: ticker is required: %w", domain.ErrInvalidSignal)
	}
	if sig.Price <= 0 || math.IsNaN(sig.Price) || math.IsInf(sig.Price, 0) {
		return fmt.Errorf("signal: price must be positive, got %g: %w", sig.Price, domain.ErrInvalidSignal)
	}
	if sig.Quantity < 0 || math.IsNaN(sig.Quantity) || math.IsInf(sig.Quantity, 0) {
		return fmt.Errorf("signal: quantity must be non-negative, got %g: %w", sig.Quantity, domain.ErrInvalidSignal)
	}
	return nil
}

func (s *SignalService) handleTick(ctx context.Context, sig domain.Signal) (SignalResult, error) {
	if err := s.logSignal(ctx, sig, domain.SignalOutcomeTick); err != nil {
		if errors.Is(err, domain.ErrDuplicateSignal) {
			return s.duplicate(sig), nil
		}
		return SignalResult{Message: "failed to record signal"}, err
	}
	if s.quotes != nil {
		s.quotes.Update(sig.Ticker, sig.Price, domain.SourceSignal, sig.ReceivedAt)
	}
	n, err := s.engine.OnPriceTick(ctx, sig.Ticker, sig.Price)
	if err != nil {
		return SignalResult{Outcome: domain.SignalOutcomeTick, Message: "price update failed"}, err
	}
	metrics.Signals.WithLabelValues(domain.SignalOutcomeTick).Inc()
	return SignalResult{
		Success:     true,
		Outcome:     domain.SignalOutcomeTick,
		Message:     fmt.Sprintf("price %g applied to %d open position(s)", sig.Price, n),
		Evaluated:   n,
		PositionIDs: []string{},
	}, nil
}

func (s *SignalService) handleEntry(ctx context.Context, sig domain.Signal, side domain.Side) (SignalResult, error) {
	if sig.IdempotencyKey != "" && s.guard != nil {
		fresh, err := s.guard.Claim(ctx, sig.IdempotencyKey, s.idempotencyTTL)
		if err != nil {
			return SignalResult{Message: "idempotency check failed"}, fmt.Errorf("signal: claim %q: %w", sig.IdempotencyKey, err)
		}
		if !fresh {
			return s.duplicate(sig), nil
		}
	}

	// Existing positions react to the signal price before any new entry.
	closedBefore, err := s.engine.OnSignalClose(ctx, sig.Ticker, sig.Price)
	if err != nil {
		s.logger.WarnContext(ctx, "signal close check failed",
			slog.String("ticker", sig.Ticker),
			slog.String("error", err.Error()),
		)
	}

	until, err := s.cooldowns.Guard(ctx, sig.Ticker)
	switch {
	case errors.Is(err, domain.ErrCooldownActive):
		return s.dropByCooldown(ctx, sig, until, err, closedBefore), nil
	case err != nil:
		return SignalResult{Message: "cooldown check failed"}, fmt.Errorf("signal: %w", err)
	}

	accounts, err := s.st.Accounts.ListEntryEnabled(ctx)
	if err != nil {
		return SignalResult{Message: "failed to load accounts"}, fmt.Errorf("signal: list accounts: %w", err)
	}

	type opened struct {
		pos      domain.Position
		expected float64
	}
	var (
		fills []opened
		errs  []string
	)
	err = s.st.Tx.InTx(ctx, func(ctx context.Context) error {
		fills, errs = fills[:0], errs[:0]
		for _, acct := range accounts {
			var pos domain.Position
			err := s.st.Tx.InTx(ctx, func(ctx context.Context) error {
				var err error
				pos, err = s.openFor(ctx, acct.ID, sig, side)
				return err
			})
			switch {
			case err == nil:
				fills = append(fills, opened{pos: pos, expected: sig.Price})
			case errors.Is(err, domain.ErrEntryDisabled), errors.Is(err, domain.ErrExposureLimit),
				errors.Is(err, domain.ErrNoRiskConfig), errors.Is(err, domain.ErrNotFound):
				s.logger.InfoContext(ctx, "account skipped",
					slog.Int64("account_id", acct.ID),
					slog.String("ticker", sig.Ticker),
					slog.String("reason", err.Error()),
				)
			default:
				s.logger.ErrorContext(ctx, "open position failed",
					slog.Int64("account_id", acct.ID),
					slog.String("ticker", sig.Ticker),
					slog.String("error", err.Error()),
				)
				errs = append(errs, fmt.Sprintf("account %d: %v", acct.ID, err))
			}
		}
		outcome := domain.SignalOutcomeOpened
		if len(fills) == 0 {
			outcome = domain.SignalOutcomeRejected
		}
		return s.logSignal(ctx, sig, outcome)
	})
	if errors.Is(err, domain.ErrDuplicateSignal) {
		return s.duplicate(sig), nil
	}
	if err != nil {
		metrics.Signals.WithLabelValues(domain.SignalOutcomeRejected).Inc()
		return SignalResult{Outcome: domain.SignalOutcomeRejected, Message: "signal processing failed"}, fmt.Errorf("signal: %w", err)
	}

	res := SignalResult{
		Success:     len(errs) == 0,
		Outcome:     domain.SignalOutcomeOpened,
		Opened:      len(fills),
		PositionIDs: make([]string, 0, len(fills)),
		Evaluated:   closedBefore,
		Errors:      errs,
	}
	for _, f := range fills {
		res.PositionIDs = append(res.PositionIDs, f.pos.ID)
		metrics.PositionsOpened.Inc()
		s.logger.InfoContext(ctx, "position opened",
			slog.String("position_id", f.pos.ID),
			slog.Int64("account_id", f.pos.AccountID),
			slog.String("ticker", f.pos.Ticker),
			slog.String("side", string(f.pos.Side)),
			slog.Float64("quantity", f.pos.Quantity),
			slog.Float64("entry_price", f.pos.EntryPrice),
		)
		send(ctx, s.notifier, notify.PositionOpened(f.pos, f.expected), s.logger)
		publish(ctx, s.bus, domain.ChannelPositions, PositionEvent{Event: "opened", Position: f.pos}, s.logger)
	}
	if len(fills) == 0 {
		res.Outcome = domain.SignalOutcomeRejected
		res.Message = "no account accepted the signal"
	} else {
		res.Message = fmt.Sprintf("%s %s: opened %d position(s)", sig.Action, sig.Ticker, len(fills))
	}
	metrics.Signals.WithLabelValues(res.Outcome).Inc()
	s.appendStream(ctx, sig, res.Outcome)
	return res, nil
}

// dropByCooldown records and announces an entry refused because the ticker
// is locked. reason wraps domain.ErrCooldownActive.
func (s *SignalService) dropByCooldown(ctx context.Context, sig domain.Signal, until time.Time, reason error, evaluated int) SignalResult {
	if err := s.logSignal(ctx, sig, domain.SignalOutcomeDropped); errors.Is(err, domain.ErrDuplicateSignal) {
		return s.duplicate(sig)
	} else if err != nil {
		s.logger.WarnContext(ctx, "record dropped signal failed", slog.String("error", err.Error()))
	}
	metrics.Signals.WithLabelValues(domain.SignalOutcomeDropped).Inc()
	s.logger.InfoContext(ctx, "signal dropped by cooldown",
		slog.String("ticker", sig.Ticker),
		slog.String("action", sig.Action),
		slog.Time("until", until),
	)
	send(ctx, s.notifier, notify.SignalDropped(sig.Ticker, sig.Action, until), s.logger)
	return SignalResult{
		Success:     true,
		Outcome:     domain.SignalOutcomeDropped,
		Message:     reason.Error(),
		PositionIDs: []string{},
		Evaluated:   evaluated,
	}
}

// openFor opens one position for an account inside the caller's
// transaction. The account row stays locked until commit so a concurrent
// kill switch cannot interleave.
func (s *SignalService) openFor(ctx context.Context, accountID int64, sig domain.Signal, side domain.Side) (domain.Position, error) {
	acct, err := s.st.Accounts.GetForUpdate(ctx, accountID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("lock account: %w", err)
	}
	if !acct.AcceptsEntries() {
		return domain.Position{}, fmt.Errorf("account %d state %s: %w", acct.ID, acct.EntryState, domain.ErrEntryDisabled)
	}
	qty, err := s.sizer.Size(ctx, acct, sig)
	if err != nil {
		return domain.Position{}, err
	}
	if qty <= 0 {
		return domain.Position{}, fmt.Errorf("account %d sized to zero: %w", acct.ID, domain.ErrExposureLimit)
	}
	fill, err := s.fills.Fill(ctx, sig.Ticker, side, qty, sig.Price)
	if err != nil {
		return domain.Position{}, fmt.Errorf("fill: %w", err)
	}

	pos := domain.Position{
		ID:                uuid.NewString(),
		AccountID:         acct.ID,
		Ticker:            sig.Ticker,
		Side:              side,
		Quantity:          fill.Quantity,
		RemainingQuantity: fill.Quantity,
		EntryPrice:        fill.Price,
		Status:            domain.PositionStatusOpen,
		OpenedAt:          fill.At,
		UpdatedAt:         fill.At,
	}
	if err := s.st.Positions.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("create position: %w", err)
	}
	if _, err := s.slippage.Record(ctx, pos.ID, pos.Ticker, sig.Price, fill.Price); err != nil {
		return domain.Position{}, err
	}
	if err := s.st.Stats.IncrementTrades(ctx, acct.ID); err != nil {
		return domain.Position{}, fmt.Errorf("increment trades: %w", err)
	}
	if err := s.st.TradeLogs.Insert(ctx, domain.TradeLog{
		PositionID: pos.ID,
		AccountID:  acct.ID,
		Action:     domain.TradeActionOpen,
		Price:      fill.Price,
		Quantity:   fill.Quantity,
		Reason:     fmt.Sprintf("Signal %s @ %g (fill source %s)", sig.Action, sig.Price, fill.Source),
		CreatedAt:  fill.At,
	}); err != nil {
		return domain.Position{}, fmt.Errorf("log open: %w", err)
	}
	return pos, nil
}

// logSignal writes the signal_log row. A repeated idempotency key maps to
// ErrDuplicateSignal.
func (s *SignalService) logSignal(ctx context.Context, sig domain.Signal, outcome string) error {
	err := s.st.Signals.Insert(ctx, domain.SignalRecord{
		Ticker:         sig.Ticker,
		Action:         sig.Action,
		Price:          sig.Price,
		IdempotencyKey: sig.IdempotencyKey,
		Outcome:        outcome,
		Payload:        sig.Raw,
		ReceivedAt:     sig.ReceivedAt,
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		return fmt.Errorf("signal: key %q: %w", sig.IdempotencyKey, domain.ErrDuplicateSignal)
	}
	if err != nil {
		return fmt.Errorf("signal: log: %w", err)
	}
	return nil
}

func (s *SignalService) duplicate(sig domain.Signal) SignalResult {
	metrics.Signals.WithLabelValues(domain.SignalOutcomeDuplicate).Inc()
	s.logger.Info("duplicate signal ignored",
		slog.String("ticker", sig.Ticker),
		slog.String("idempotency_key", sig.IdempotencyKey),
	)
	return SignalResult{
		Success:     true,
		Outcome:     domain.SignalOutcomeDuplicate,
		Message:     "duplicate signal ignored",
		PositionIDs: []string{},
	}
}

// signalEntry is the durable stream record of an accepted entry signal.
type signalEntry struct {
	Ticker     string    `json:"ticker"`
	Action     string    `json:"action"`
	Price      float64   `json:"price"`
	Outcome    string    `json:"outcome"`
	ReceivedAt time.Time `json:"received_at"`
}

func (s *SignalService) appendStream(ctx context.Context, sig domain.Signal, outcome string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(signalEntry{
		Ticker: sig.Ticker, Action: sig.Action, Price: sig.Price, Outcome: outcome, ReceivedAt: sig.ReceivedAt,
	})
	if err != nil {
		return
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamSignals, payload); err != nil {
		s.logger.WarnContext(ctx, "append signal stream failed", slog.String("error", err.Error()))
	}
}
