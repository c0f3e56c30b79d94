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
)

// CooldownService locks tickers against new entries after adverse exits.
// Expired locks are deactivated lazily on read and by Sweep.
type CooldownService struct {
	store           domain.CooldownStore
	defaultDuration time.Duration
	now             func() time.Time
	logger          *slog.Logger
}

// NewCooldownService creates a CooldownService. defaultDuration applies when
// Activate is called with a non-positive duration.
func NewCooldownService(store domain.CooldownStore, defaultDuration time.Duration, logger *slog.Logger) *CooldownService {
	return &CooldownService{
		store:           store,
		defaultDuration: defaultDuration,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.With(slog.String("component", "cooldown")),
	}
}

// CooldownStatus is the lock state of one ticker.
type CooldownStatus struct {
	Ticker    string        `json:"ticker"`
	Locked    bool          `json:"locked"`
	Until     *time.Time    `json:"cooldown_until,omitempty"`
	Remaining time.Duration `json:"-"`
}

// ActiveCooldown is an active lock with the time it still holds.
type ActiveCooldown struct {
	domain.Cooldown
	Remaining time.Duration
}

// Activate locks ticker for d (the default when d <= 0). When ctx carries a
// transaction the row joins it.
func (s *CooldownService) Activate(ctx context.Context, ticker, reason string, d time.Duration) (domain.Cooldown, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return domain.Cooldown{}, fmt.Errorf("cooldown: activate: empty ticker: %w", domain.ErrInvalidSignal)
	}
	if d <= 0 {
		d = s.defaultDuration
	}
	now := s.now()
	c, err := s.store.Insert(ctx, domain.Cooldown{
		Ticker:        ticker,
		ActivatedAt:   now,
		CooldownUntil: now.Add(d),
		Reason:        reason,
		Active:        true,
	})
	if err != nil {
		return domain.Cooldown{}, fmt.Errorf("cooldown: activate %q: %w", ticker, err)
	}
	metrics.CooldownsActivated.Inc()
	s.logger.InfoContext(ctx, "cooldown activated",
		slog.String("ticker", ticker),
		slog.Time("until", c.CooldownUntil),
		slog.String("reason", reason),
	)
	return c, nil
}

// IsLocked reports whether ticker is locked at the current time and until
// when. The furthest expiry among active rows wins.
func (s *CooldownService) IsLocked(ctx context.Context, ticker string) (bool, time.Time, error) {
	now := s.now()
	if _, err := s.store.DeactivateExpired(ctx, ticker, now); err != nil {
		return false, time.Time{}, fmt.Errorf("cooldown: expire %q: %w", ticker, err)
	}
	until, err := s.store.LatestActiveUntil(ctx, ticker)
	if errors.Is(err, domain.ErrNotFound) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("cooldown: check %q: %w", ticker, err)
	}
	if !until.After(now) {
		return false, time.Time{}, nil
	}
	return true, until, nil
}

// Guard returns an error wrapping domain.ErrCooldownActive, and the lock
// expiry, while ticker is locked.
func (s *CooldownService) Guard(ctx context.Context, ticker string) (time.Time, error) {
	locked, until, err := s.IsLocked(ctx, ticker)
	if err != nil || !locked {
		return time.Time{}, err
	}
	return until, fmt.Errorf("%s locked until %s: %w", ticker, until.Format(time.RFC3339), domain.ErrCooldownActive)
}

// Status is IsLocked shaped for the API.
func (s *CooldownService) Status(ctx context.Context, ticker string) (CooldownStatus, error) {
	locked, until, err := s.IsLocked(ctx, ticker)
	if err != nil {
		return CooldownStatus{}, err
	}
	st := CooldownStatus{Ticker: ticker, Locked: locked}
	if locked {
		st.Until = &until
		st.Remaining = until.Sub(s.now())
	}
	return st, nil
}

// Deactivate lifts every active lock on ticker.
func (s *CooldownService) Deactivate(ctx context.Context, ticker string) (int64, error) {
	n, err := s.store.DeactivateTicker(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("cooldown: deactivate %q: %w", ticker, err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "cooldown lifted", slog.String("ticker", ticker), slog.Int64("rows", n))
	}
	return n, nil
}

// ListActive returns every unexpired lock.
func (s *CooldownService) ListActive(ctx context.Context) ([]ActiveCooldown, error) {
	now := s.now()
	rows, err := s.store.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("cooldown: list active: %w", err)
	}
	out := make([]ActiveCooldown, 0, len(rows))
	for _, c := range rows {
		if rem := c.Remaining(now); rem > 0 {
			out = append(out, ActiveCooldown{Cooldown: c, Remaining: rem})
		}
	}
	return out, nil
}

// Sweep deactivates every expired lock. It runs on a schedule.
func (s *CooldownService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeactivateExpired(ctx, "", s.now())
	if err != nil {
		return 0, fmt.Errorf("cooldown: sweep: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired cooldowns swept", slog.Int64("rows", n))
	}
	return n, nil
}
