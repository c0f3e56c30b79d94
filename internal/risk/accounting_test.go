package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

func TestRecordCloseStreaksAndDrawdown(t *testing.T) {
	s := domain.AccountStats{AccountID: 1, PeakEquity: 1000}

	RecordPartial(&s, 15, 1000, t0)
	assert.InDelta(t, 15.0, s.TotalProfit, 1e-9)
	assert.Zero(t, s.WinningTrades)
	assert.InDelta(t, 1015.0, s.PeakEquity, 1e-9)

	RecordClose(&s, 9.5, 24.5, 1000, t0)
	assert.EqualValues(t, 1, s.WinningTrades)
	assert.Equal(t, 1, s.ConsecutiveWins)

	RecordClose(&s, -50, -50, 1000, t0)
	RecordClose(&s, -25, -25, 1000, t0)
	assert.EqualValues(t, 2, s.LosingTrades)
	assert.Equal(t, 0, s.ConsecutiveWins)
	assert.Equal(t, 2, s.ConsecutiveLosses)
	assert.InDelta(t, 75.0, s.CurrentDrawdown, 1e-9)
	assert.InDelta(t, 75.0, s.MaxDrawdown, 1e-9)
	assert.InDelta(t, 75.0/1024.5*100, s.MaxDrawdownPct, 1e-9)

	RecordClose(&s, 100, 100, 1000, t0)
	assert.Equal(t, 1, s.ConsecutiveWins)
	assert.Equal(t, 0, s.ConsecutiveLosses)
	assert.Zero(t, s.CurrentDrawdown)
	assert.InDelta(t, 75.0, s.MaxDrawdown, 1e-9)
	assert.InDelta(t, 1049.5, Equity(s, 1000), 1e-9)
}

func TestCurveDrawdown(t *testing.T) {
	assert.Equal(t, Drawdown{}, CurveDrawdown(nil))

	d := CurveDrawdown([]float64{100, 120, 90, 110, 105})
	assert.InDelta(t, 30.0, d.Max, 1e-9)
	assert.InDelta(t, 15.0, d.Current, 1e-9)
	assert.InDelta(t, 25.0, d.MaxPct, 1e-9)
	assert.InDelta(t, 12.5, d.CurrentPct, 1e-9)
}
