package risk

import (
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// RecordPartial books the PnL of a partial close. Partial slices move total
// profit and equity but do not count as a decided trade.
func RecordPartial(s *domain.AccountStats, pnl, startingEquity float64, now time.Time) {
	s.TotalProfit += pnl
	updateDrawdown(s, startingEquity+s.TotalProfit)
	s.UpdatedAt = now
}

// RecordClose books the final leg of a position. legPnL is added to total
// profit; positionPnL (the whole position's realized PnL including earlier
// partials) decides the win/loss bucket and the streaks.
func RecordClose(s *domain.AccountStats, legPnL, positionPnL, startingEquity float64, now time.Time) {
	s.TotalProfit += legPnL
	if positionPnL > 0 {
		s.WinningTrades++
		s.ConsecutiveWins++
		s.ConsecutiveLosses = 0
	} else {
		s.LosingTrades++
		s.ConsecutiveLosses++
		s.ConsecutiveWins = 0
	}
	updateDrawdown(s, startingEquity+s.TotalProfit)
	s.UpdatedAt = now
}

// Equity is the account's current equity implied by its stats.
func Equity(s domain.AccountStats, startingEquity float64) float64 {
	return startingEquity + s.TotalProfit
}

func updateDrawdown(s *domain.AccountStats, equity float64) {
	if equity > s.PeakEquity {
		s.PeakEquity = equity
	}
	dd := s.PeakEquity - equity
	s.CurrentDrawdown = dd
	s.CurrentDrawdownPct = 0
	if s.PeakEquity > 0 {
		s.CurrentDrawdownPct = dd / s.PeakEquity * 100
	}
	if dd > s.MaxDrawdown {
		s.MaxDrawdown = dd
		s.MaxDrawdownPct = s.CurrentDrawdownPct
	}
}

// Drawdown summarizes an equity curve.
type Drawdown struct {
	Max        float64 `json:"max"`
	MaxPct     float64 `json:"max_pct"`
	Current    float64 `json:"current"`
	CurrentPct float64 `json:"current_pct"`
}

// CurveDrawdown walks an equity series in time order and returns the largest
// and the latest drop from the running peak. Percentages are relative to the
// final peak.
func CurveDrawdown(equities []float64) Drawdown {
	var d Drawdown
	if len(equities) == 0 {
		return d
	}
	peak := equities[0]
	for _, e := range equities {
		if e > peak {
			peak = e
		}
		dd := peak - e
		if dd > d.Max {
			d.Max = dd
		}
		d.Current = dd
	}
	if peak > 0 {
		d.MaxPct = d.Max / peak * 100
		d.CurrentPct = d.Current / peak * 100
	}
	return d
}
