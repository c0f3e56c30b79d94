package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

func TestAnalyze(t *testing.T) {
	stats := domain.AccountStats{
		TotalTrades:       5,
		TotalProfit:       45.555,
		ConsecutiveLosses: 1,
		MaxDrawdown:       12.345,
	}
	sum := domain.TradeSummary{
		Closed:      4,
		Wins:        3,
		Losses:      1,
		GrossProfit: 60,
		GrossLoss:   -15,
		LargestWin:  30,
		LargestLoss: -15,
	}
	a := Analyze(stats, sum, 1000)
	assert.EqualValues(t, 5, a.TotalTrades)
	assert.EqualValues(t, 4, a.ClosedTrades)
	assert.InDelta(t, 75.0, a.WinRate, 1e-9)
	assert.InDelta(t, 20.0, a.AvgProfit, 1e-9)
	assert.InDelta(t, -15.0, a.AvgLoss, 1e-9)
	assert.InDelta(t, 4.0, a.ProfitFactor, 1e-9)
	assert.InDelta(t, 45.56, a.TotalProfit, 1e-9)
	assert.InDelta(t, 12.35, a.MaxDrawdown, 1e-9)
	assert.InDelta(t, 1045.56, a.Equity, 1e-9)
}

func TestAnalyze_NoClosedTrades(t *testing.T) {
	a := Analyze(domain.AccountStats{TotalTrades: 2}, domain.TradeSummary{}, 500)
	assert.Zero(t, a.WinRate)
	assert.Zero(t, a.ProfitFactor)
	assert.InDelta(t, 500.0, a.Equity, 1e-9)
}

func TestStatsReport(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addAccount(trailingAccount(1))
	st := db.stores()
	svc := NewStatsService(st, discardLogger())
	svc.now = func() time.Time { return testNow }

	seedPosition(db, "open", 1, "AAA", domain.SideLong, 100, 3)
	for i, eq := range []float64{10000, 10050, 9990, 10020} {
		require.NoError(t, st.Equity.Insert(ctx, domain.EquitySnapshot{
			AccountID: 1, Equity: eq, At: testNow.Add(time.Duration(i-4) * time.Hour),
		}))
	}
	require.NoError(t, st.Equity.Insert(ctx, domain.EquitySnapshot{
		AccountID: 1, Equity: 1, At: testNow.Add(-48 * time.Hour),
	}))

	rep, err := svc.Report(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.Account.ID)
	assert.Len(t, rep.EquityCurve, 4, "points older than the period are excluded")
	assert.InDelta(t, 60.0, rep.PeriodDrawdown.Max, 1e-9)
	assert.InDelta(t, 30.0, rep.PeriodDrawdown.Current, 1e-9)
	assert.InDelta(t, 300.0, rep.OpenExposure, 1e-9)

	_, err = svc.Report(ctx, 9, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotEquity(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addAccount(trailingAccount(1))
	db.addAccount(simpleAccount(2))
	db.mu.Lock()
	s := db.stats[2]
	s.TotalProfit = -25
	db.stats[2] = s
	db.mu.Unlock()

	svc := NewStatsService(db.stores(), discardLogger())
	n, err := svc.SnapshotEquity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, db.equity, 2)
	assert.InDelta(t, 10000.0, db.equity[0].Equity, 1e-9)
	assert.InDelta(t, 9975.0, db.equity[1].Equity, 1e-9)
}
