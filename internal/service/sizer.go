package service

import (
	"context"
	"fmt"
	"math"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// Sizer decides how many units an account buys for a signal. Returning zero
// skips the account.
type Sizer interface {
	Size(ctx context.Context, acct domain.Account, sig domain.Signal) (float64, error)
}

// NotionalSizer spends the account's position notional at the signal price.
// An explicit signal quantity takes precedence.
type NotionalSizer struct{}

// Size returns the signal quantity when set, otherwise notional / price. An
// account without a notional fails with domain.ErrNoRiskConfig.
func (NotionalSizer) Size(_ context.Context, acct domain.Account, sig domain.Signal) (float64, error) {
	if sig.Quantity > 0 {
		return sig.Quantity, nil
	}
	if sig.Price <= 0 {
		return 0, fmt.Errorf("sizer: price %g: %w", sig.Price, domain.ErrInvalidSignal)
	}
	if acct.PositionNotional <= 0 {
		return 0, fmt.Errorf("sizer: account %d has no position notional: %w", acct.ID, domain.ErrNoRiskConfig)
	}
	return acct.PositionNotional / sig.Price, nil
}

// ExposureCappedSizer wraps another Sizer and shrinks the order so the
// account's open entry notional stays under MaxOpenExposure.
type ExposureCappedSizer struct {
	Next      Sizer
	Positions domain.PositionStore
}

// Size caps Next's quantity to the exposure room left at the signal price.
// A full account fails with domain.ErrExposureLimit; a zero cap disables the
// check.
func (s ExposureCappedSizer) Size(ctx context.Context, acct domain.Account, sig domain.Signal) (float64, error) {
	qty, err := s.Next.Size(ctx, acct, sig)
	if err != nil || acct.MaxOpenExposure <= 0 || qty <= 0 {
		return qty, err
	}
	open, err := s.Positions.OpenExposure(ctx, acct.ID)
	if err != nil {
		return 0, fmt.Errorf("sizer: open exposure for account %d: %w", acct.ID, err)
	}
	room := acct.MaxOpenExposure - open
	if room <= 0 {
		return 0, fmt.Errorf("sizer: account %d at %.2f of %.2f: %w", acct.ID, open, acct.MaxOpenExposure, domain.ErrExposureLimit)
	}
	return math.Min(qty, room/sig.Price), nil
}
