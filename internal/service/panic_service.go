package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/metrics"
	"github.com/alanyoungcy/signalguard/internal/notify"
	"github.com/alanyoungcy/signalguard/internal/risk"
)

const killSwitchLockTTL = 2 * time.Minute

// KillSwitchResult reports what an emergency close achieved.
type KillSwitchResult struct {
	Success         bool     `json:"success"`
	AccountID       int64    `json:"account_id"`
	PositionsClosed int      `json:"positions_closed"`
	Message         string   `json:"message"`
	Errors          []string `json:"errors"`
	State           string   `json:"entry_state,omitempty"`
}

// PanicService implements the kill switch: disable automated entry for an
// account and force-close everything it holds.
type PanicService struct {
	st       Stores
	locks    domain.LockManager
	bus      domain.SignalBus
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewPanicService creates a PanicService. bus and notifier may be nil.
func NewPanicService(st Stores, locks domain.LockManager, bus domain.SignalBus, notifier Notifier, logger *slog.Logger) *PanicService {
	return &PanicService{
		st:       st,
		locks:    locks,
		bus:      bus,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "panic")),
	}
}

// ExecuteKillSwitch disables entry for the account and closes every open
// position at its last price (entry price when none was seen). Each close
// runs in its own savepoint; failures are collected and the rest proceed.
// The account ends disarmed when nothing is left open, triggered otherwise.
// Only a failure to disable entry fails the whole operation.
func (s *PanicService) ExecuteKillSwitch(ctx context.Context, accountID int64, reason string) (KillSwitchResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual activation"
	}
	res := KillSwitchResult{AccountID: accountID, Errors: []string{}}

	// The account row lock taken below still serializes against intake, so
	// only a concurrent kill switch stops this one.
	unlock, err := s.locks.Acquire(ctx, fmt.Sprintf("killswitch:%d", accountID), killSwitchLockTTL)
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		metrics.KillSwitches.WithLabelValues("failed").Inc()
		res.Message = "kill switch already running for this account"
		return res, fmt.Errorf("panic: account %d: %w", accountID, err)
	case err != nil:
		s.logger.WarnContext(ctx, "kill switch lock unavailable, continuing on account row lock",
			slog.Int64("account_id", accountID),
			slog.String("error", err.Error()),
		)
		unlock = func() {}
	}
	defer unlock()

	s.logger.WarnContext(ctx, "kill switch activated",
		slog.Int64("account_id", accountID),
		slog.String("reason", reason),
	)

	var closed []domain.Position
	err = s.st.Tx.InTx(ctx, func(ctx context.Context) error {
		closed, res.Errors = closed[:0], res.Errors[:0]
		remaining := 0

		acct, err := s.st.Accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if err := s.st.Accounts.SetEntry(ctx, accountID, false, domain.EntryStateTriggered); err != nil {
			return fmt.Errorf("disable entry: %w", err)
		}
		open, err := s.st.Positions.ListOpenByAccountForUpdate(ctx, accountID)
		if err != nil {
			return fmt.Errorf("list open positions: %w", err)
		}

		for _, p := range open {
			pos, legPnL, err := s.closeOne(ctx, p, reason)
			if err != nil {
				s.logger.ErrorContext(ctx, "panic close failed",
					slog.String("position_id", p.ID),
					slog.String("ticker", p.Ticker),
					slog.String("error", err.Error()),
				)
				res.Errors = append(res.Errors, fmt.Sprintf("%s (%s): %v", p.ID, p.Ticker, err))
				remaining++
				continue
			}
			closed = append(closed, pos)

			// The position is closed either way; a stats failure is reported.
			if err := s.st.Tx.InTx(ctx, func(ctx context.Context) error {
				return s.bookStats(ctx, acct, pos, legPnL)
			}); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s (%s): stats: %v", p.ID, p.Ticker, err))
			}
		}

		state := domain.EntryStateTriggered
		if remaining == 0 {
			state = domain.EntryStateDisarmed
			if err := s.st.Accounts.SetEntry(ctx, accountID, false, state); err != nil {
				return fmt.Errorf("disarm: %w", err)
			}
		}
		res.State = string(state)
		return nil
	})
	if err != nil {
		metrics.KillSwitches.WithLabelValues("failed").Inc()
		res.Success = false
		res.PositionsClosed = 0
		res.Message = fmt.Sprintf("kill switch failed: %v", err)
		s.logger.ErrorContext(ctx, "kill switch failed",
			slog.Int64("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return res, fmt.Errorf("panic: account %d: %w", accountID, err)
	}

	res.PositionsClosed = len(closed)
	res.Success = true
	if len(res.Errors) == 0 {
		metrics.KillSwitches.WithLabelValues("success").Inc()
		res.Message = fmt.Sprintf("kill switch executed: %d position(s) closed, automated entry disabled", len(closed))
	} else {
		metrics.KillSwitches.WithLabelValues("partial").Inc()
		res.Message = fmt.Sprintf("kill switch executed with %d error(s): %d position(s) closed", len(res.Errors), len(closed))
	}

	for _, pos := range closed {
		metrics.Closes.WithLabelValues("panic").Inc()
		metrics.RealizedPnL.Add(pos.RealizedPnL)
		publish(ctx, s.bus, domain.ChannelPositions, PositionEvent{Event: "closed", Position: pos}, s.logger)
	}
	publish(ctx, s.bus, domain.ChannelAlerts, res, s.logger)
	audit(ctx, s.st.Audit, "kill_switch", map[string]any{
		"account_id":       accountID,
		"reason":           reason,
		"positions_closed": len(closed),
		"errors":           res.Errors,
	}, s.logger)
	send(ctx, s.notifier, notify.KillSwitch(accountID, reason, len(closed), res.Errors), s.logger)
	return res, nil
}

// closeOne force-closes one position in a savepoint, retrying once on a
// fresh copy of the row.
func (s *PanicService) closeOne(ctx context.Context, p domain.Position, reason string) (domain.Position, float64, error) {
	var (
		pos    domain.Position
		legPnL float64
		err    error
	)
	for attempt := 0; attempt < 2; attempt++ {
		err = s.st.Tx.InTx(ctx, func(ctx context.Context) error {
			pos = p
			now := s.now()
			price := pos.MarkPrice()
			var qty float64
			qty, legPnL = risk.ForceClose(&pos, price, domain.CloseReasonPanicPrefix+reason, now)
			if err := s.st.Positions.Update(ctx, pos); err != nil {
				return fmt.Errorf("update position: %w", err)
			}
			if err := s.st.TradeLogs.Insert(ctx, domain.TradeLog{
				PositionID: pos.ID,
				AccountID:  pos.AccountID,
				Action:     domain.TradeActionPanicClose,
				Price:      price,
				Quantity:   qty,
				Reason:     pos.CloseReason,
				CreatedAt:  now,
			}); err != nil {
				return fmt.Errorf("log panic close: %w", err)
			}
			return nil
		})
		if err == nil {
			return pos, legPnL, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return domain.Position{}, 0, err
}

func (s *PanicService) bookStats(ctx context.Context, acct domain.Account, pos domain.Position, legPnL float64) error {
	stats, err := s.st.Stats.GetForUpdate(ctx, acct.ID)
	if err != nil {
		return fmt.Errorf("lock stats: %w", err)
	}
	now := s.now()
	risk.RecordClose(&stats, legPnL, pos.RealizedPnL, acct.StartingEquity, now)
	if err := s.st.Stats.Save(ctx, stats); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

// DisableGlobally turns off automated entry on every armed account without
// touching open positions.
func (s *PanicService) DisableGlobally(ctx context.Context) (int64, error) {
	n, err := s.st.Accounts.DisableAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("panic: disable all: %w", err)
	}
	s.logger.WarnContext(ctx, "automated entry disabled globally", slog.Int64("accounts", n))
	audit(ctx, s.st.Audit, "entry_disabled_globally", map[string]any{"accounts": n}, s.logger)
	send(ctx, s.notifier, notify.EntryDisabledGlobally(n), s.logger)
	return n, nil
}

// Rearm re-enables automated entry. Only a disarmed account can be re-armed;
// a triggered one still holds positions the kill switch could not close.
func (s *PanicService) Rearm(ctx context.Context, accountID int64) (domain.Account, error) {
	var acct domain.Account
	err := s.st.Tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.st.Accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if a.EntryState != domain.EntryStateDisarmed {
			return fmt.Errorf("rearm from %s: %w", a.EntryState, domain.ErrInvalidTransition)
		}
		if err := s.st.Accounts.SetEntry(ctx, accountID, true, domain.EntryStateArmed); err != nil {
			return err
		}
		a.AutoEntryEnabled = true
		a.EntryState = domain.EntryStateArmed
		acct = a
		return nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("panic: rearm account %d: %w", accountID, err)
	}
	s.logger.InfoContext(ctx, "account re-armed", slog.Int64("account_id", accountID))
	audit(ctx, s.st.Audit, "account_rearmed", map[string]any{"account_id": accountID}, s.logger)
	return acct, nil
}

// History lists the most recent panic closes, 10 by default.
func (s *PanicService) History(ctx context.Context, limit int) ([]domain.TradeLog, error) {
	if limit <= 0 {
		limit = 10
	}
	logs, err := s.st.TradeLogs.ListByAction(ctx, domain.TradeActionPanicClose, limit)
	if err != nil {
		return nil, fmt.Errorf("panic: history: %w", err)
	}
	return logs, nil
}
