// Package risk holds the per-tick position rules: mark-to-market, trailing
// stop, break-even ratchet, partial take-profits and the simple stop-loss /
// take-profit exit. Functions here mutate a domain.Position in memory and
// report what happened; persistence and side effects belong to the caller.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// qtyEpsilon treats leftovers from float subtraction as fully closed.
const qtyEpsilon = 1e-9

// Params configures the trailing / break-even / partial-close pipeline.
// Percentages are expressed in percent (1.0 = 1%); CommissionRate is a
// fraction (0.001 = 0.1%).
type Params struct {
	TrailingPct    float64
	FloorPct       float64
	BreakEvenPct   float64
	CommissionRate float64
	TP1Pct         float64
	TP1Fraction    float64
	TP2Pct         float64
}

// DefaultParams returns the stock rule set: 1% trail, stop never more than 2%
// below entry, break-even at +1.5% with a 0.1% commission buffer, half of the
// original size taken at +2% and the rest at +5%.
func DefaultParams() Params {
	return Params{
		TrailingPct:    1.0,
		FloorPct:       2.0,
		BreakEvenPct:   1.5,
		CommissionRate: 0.001,
		TP1Pct:         2.0,
		TP1Fraction:    0.5,
		TP2Pct:         5.0,
	}
}

// Limits are the per-account thresholds for the simple exit rule.
type Limits struct {
	StopLossPct   float64
	TakeProfitPct float64
}

// Partial is one take-profit slice executed during a tick.
type Partial struct {
	Reason   string
	Quantity float64
	Price    float64
	PnL      float64
}

// Outcome reports the side effects a tick produced on a position.
type Outcome struct {
	Partials           []Partial
	BreakEvenActivated bool
	Closed             bool
	CloseReason        string
	CloseQuantity      float64
	ClosePnL           float64 // PnL of the final leg only
	StopLoss           bool    // the close was an adverse exit
}

// PnL returns the profit of qty units moved from entry to price for side.
func PnL(side domain.Side, entry, price, qty float64) float64 {
	return side.Sign() * (price - entry) * qty
}

// MovePct is the favorable move from entry to price in percent.
func MovePct(side domain.Side, entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	return side.Sign() * (price - entry) / entry * 100
}

// TrailingStop returns the raw stop for the given favorable extreme: the
// extreme pulled back by TrailingPct, but never looser than FloorPct from
// entry.
func TrailingStop(side domain.Side, entry, extreme float64, p Params) float64 {
	if side == domain.SideShort {
		return math.Min(extreme*(1+p.TrailingPct/100), entry*(1+p.FloorPct/100))
	}
	return math.Max(extreme*(1-p.TrailingPct/100), entry*(1-p.FloorPct/100))
}

// BreakEvenPrice is entry shifted by the commission buffer in the position's
// favor.
func BreakEvenPrice(side domain.Side, entry, commission float64) float64 {
	if side == domain.SideShort {
		return entry * (1 - commission)
	}
	return entry * (1 + commission)
}

// tighter returns whichever stop is closer to price for side.
func tighter(side domain.Side, a, b float64) float64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if side == domain.SideShort {
		return math.Min(a, b)
	}
	return math.Max(a, b)
}

// Mark updates current price, favorable extreme and unrealized PnL.
func Mark(pos *domain.Position, price float64, now time.Time) {
	pos.CurrentPrice = price
	if pos.ExtremePrice == 0 {
		pos.ExtremePrice = pos.EntryPrice
	}
	if pos.Side == domain.SideShort {
		pos.ExtremePrice = math.Min(pos.ExtremePrice, price)
	} else {
		pos.ExtremePrice = math.Max(pos.ExtremePrice, price)
	}
	refreshUnrealized(pos)
	pos.UpdatedAt = now
}

func refreshUnrealized(pos *domain.Position) {
	pos.UnrealizedPnL = PnL(pos.Side, pos.EntryPrice, pos.CurrentPrice, pos.RemainingQuantity)
	if pos.RemainingQuantity > 0 {
		pos.UnrealizedPnLPct = MovePct(pos.Side, pos.EntryPrice, pos.CurrentPrice)
	} else {
		pos.UnrealizedPnLPct = 0
	}
}

// Apply runs one tick of the full pipeline on an open position, in order:
// mark, trailing stop, break-even, TP1, TP2, stop check. Partial closes are
// resolved before the stop check so a tick that both crosses a target and
// breaches the stop closes the slice first and stops out the remainder.
func Apply(pos *domain.Position, price float64, p Params, now time.Time) Outcome {
	var out Outcome
	if !pos.IsOpen() || price <= 0 {
		return out
	}

	Mark(pos, price, now)
	pct := pos.UnrealizedPnLPct

	pos.TrailingStop = tighter(pos.Side, pos.TrailingStop,
		TrailingStop(pos.Side, pos.EntryPrice, pos.ExtremePrice, p))

	if !pos.BreakEvenActive && pct >= p.BreakEvenPct {
		pos.TrailingStop = tighter(pos.Side, pos.TrailingStop,
			BreakEvenPrice(pos.Side, pos.EntryPrice, p.CommissionRate))
		pos.BreakEvenActive = true
		out.BreakEvenActivated = true
	}

	if !pos.TP1Closed && pct >= p.TP1Pct {
		qty := math.Min(pos.Quantity*p.TP1Fraction, pos.RemainingQuantity)
		out.Partials = append(out.Partials, takePartial(pos, "TP1", qty, price))
		pos.TP1Closed = true
	}
	if !pos.TP2Closed && pct >= p.TP2Pct && pos.RemainingQuantity > qtyEpsilon {
		out.Partials = append(out.Partials, takePartial(pos, "TP2", pos.RemainingQuantity, price))
		pos.TP2Closed = true
	}

	if pos.RemainingQuantity <= qtyEpsilon {
		reason := domain.CloseReasonTakeProfit1
		if pos.TP2Closed {
			reason = domain.CloseReasonTakeProfit2
		}
		finish(pos, price, reason, now)
		out.Closed = true
		out.CloseReason = reason
		return out
	}
	refreshUnrealized(pos)

	stopHit := price <= pos.TrailingStop
	if pos.Side == domain.SideShort {
		stopHit = price >= pos.TrailingStop
	}
	if stopHit {
		out.CloseQuantity = pos.RemainingQuantity
		out.ClosePnL = PnL(pos.Side, pos.EntryPrice, price, pos.RemainingQuantity)
		pos.RealizedPnL += out.ClosePnL
		finish(pos, price, domain.CloseReasonTrailingStop, now)
		out.Closed = true
		out.CloseReason = domain.CloseReasonTrailingStop
		out.StopLoss = pos.RealizedPnL < 0
	}
	return out
}

// ApplySimple marks the position and closes it fully when the move reaches
// the stop-loss or take-profit percentage. A zero limit disables that side.
func ApplySimple(pos *domain.Position, price float64, l Limits, now time.Time) Outcome {
	var out Outcome
	if !pos.IsOpen() || price <= 0 {
		return out
	}

	Mark(pos, price, now)
	pct := pos.UnrealizedPnLPct

	switch {
	case l.StopLossPct > 0 && pct <= -l.StopLossPct:
		out.CloseReason = fmt.Sprintf("Stop Loss (%.2f%%)", pct)
		out.StopLoss = true
	case l.TakeProfitPct > 0 && pct >= l.TakeProfitPct:
		out.CloseReason = fmt.Sprintf("Take Profit (%.2f%%)", pct)
	default:
		return out
	}

	out.CloseQuantity = pos.RemainingQuantity
	out.ClosePnL = PnL(pos.Side, pos.EntryPrice, price, pos.RemainingQuantity)
	pos.RealizedPnL += out.ClosePnL
	finish(pos, price, out.CloseReason, now)
	out.Closed = true
	return out
}

// ForceClose closes whatever remains at price with the given reason and
// returns the PnL of the closed quantity.
func ForceClose(pos *domain.Position, price float64, reason string, now time.Time) (qty, pnl float64) {
	qty = pos.RemainingQuantity
	pnl = PnL(pos.Side, pos.EntryPrice, price, qty)
	pos.CurrentPrice = price
	pos.RealizedPnL += pnl
	finish(pos, price, reason, now)
	return qty, pnl
}

func takePartial(pos *domain.Position, reason string, qty, price float64) Partial {
	pnl := PnL(pos.Side, pos.EntryPrice, price, qty)
	pos.RemainingQuantity -= qty
	if pos.RemainingQuantity < qtyEpsilon {
		pos.RemainingQuantity = 0
	}
	pos.RealizedPnL += pnl
	return Partial{Reason: reason, Quantity: qty, Price: price, PnL: pnl}
}

func finish(pos *domain.Position, price float64, reason string, now time.Time) {
	pos.RemainingQuantity = 0
	pos.UnrealizedPnL = 0
	pos.UnrealizedPnLPct = 0
	pos.ExitPrice = price
	pos.CloseReason = reason
	pos.Status = domain.PositionStatusClosed
	pos.UpdatedAt = now
	closed := now
	pos.ClosedAt = &closed
}
