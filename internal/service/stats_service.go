package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/risk"
)

// Analytics are the derived performance figures of an account, rounded to
// two decimals.
type Analytics struct {
	TotalTrades        int64   `json:"total_trades"`
	ClosedTrades       int64   `json:"closed_trades"`
	WinningTrades      int64   `json:"winning_trades"`
	LosingTrades       int64   `json:"losing_trades"`
	WinRate            float64 `json:"win_rate"`
	TotalProfit        float64 `json:"total_profit"`
	AvgProfit          float64 `json:"avg_profit"`
	AvgLoss            float64 `json:"avg_loss"`
	LargestWin         float64 `json:"largest_win"`
	LargestLoss        float64 `json:"largest_loss"`
	ProfitFactor       float64 `json:"profit_factor"`
	ConsecutiveWins    int     `json:"consecutive_wins"`
	ConsecutiveLosses  int     `json:"consecutive_losses"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	MaxDrawdownPct     float64 `json:"max_drawdown_percent"`
	CurrentDrawdown    float64 `json:"current_drawdown"`
	CurrentDrawdownPct float64 `json:"current_drawdown_percent"`
	StartingEquity     float64 `json:"starting_equity"`
	Equity             float64 `json:"equity"`
}

// EquityPoint is one point of the reported equity curve.
type EquityPoint struct {
	Equity float64   `json:"equity"`
	At     time.Time `json:"timestamp"`
}

// AccountReport is the full stats view of one account.
type AccountReport struct {
	Account        domain.Account `json:"account"`
	Analytics      Analytics      `json:"analytics"`
	EquityCurve    []EquityPoint  `json:"equity_curve"`
	PeriodDrawdown risk.Drawdown  `json:"period_drawdown"`
	OpenExposure   float64        `json:"open_exposure"`
}

// StatsService reads account statistics and keeps the equity curve fed.
type StatsService struct {
	st     Stores
	now    func() time.Time
	logger *slog.Logger
}

// NewStatsService creates a StatsService.
func NewStatsService(st Stores, logger *slog.Logger) *StatsService {
	return &StatsService{
		st:     st,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "stats")),
	}
}

// Report builds the stats view with the equity curve of the last period
// (24h when period <= 0).
func (s *StatsService) Report(ctx context.Context, accountID int64, period time.Duration) (AccountReport, error) {
	if period <= 0 {
		period = 24 * time.Hour
	}
	acct, err := s.st.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return AccountReport{}, fmt.Errorf("stats: account %d: %w", accountID, err)
	}
	stats, err := s.st.Stats.Get(ctx, accountID)
	if err != nil {
		return AccountReport{}, fmt.Errorf("stats: load %d: %w", accountID, err)
	}
	sum, err := s.st.Positions.TradeSummary(ctx, accountID)
	if err != nil {
		return AccountReport{}, fmt.Errorf("stats: trade summary %d: %w", accountID, err)
	}
	exposure, err := s.st.Positions.OpenExposure(ctx, accountID)
	if err != nil {
		return AccountReport{}, fmt.Errorf("stats: exposure %d: %w", accountID, err)
	}
	snaps, err := s.st.Equity.List(ctx, accountID, s.now().Add(-period))
	if err != nil {
		return AccountReport{}, fmt.Errorf("stats: equity curve %d: %w", accountID, err)
	}

	curve := make([]EquityPoint, 0, len(snaps))
	series := make([]float64, 0, len(snaps))
	for _, sn := range snaps {
		curve = append(curve, EquityPoint{Equity: round(sn.Equity, 2), At: sn.At})
		series = append(series, sn.Equity)
	}
	dd := risk.CurveDrawdown(series)
	dd = risk.Drawdown{
		Max: round(dd.Max, 2), MaxPct: round(dd.MaxPct, 2),
		Current: round(dd.Current, 2), CurrentPct: round(dd.CurrentPct, 2),
	}

	return AccountReport{
		Account:        acct,
		Analytics:      Analyze(stats, sum, acct.StartingEquity),
		EquityCurve:    curve,
		PeriodDrawdown: dd,
		OpenExposure:   round(exposure, 2),
	}, nil
}

// Analyze combines running stats with the closed-trade summary.
func Analyze(stats domain.AccountStats, sum domain.TradeSummary, startingEquity float64) Analytics {
	a := Analytics{
		TotalTrades:        stats.TotalTrades,
		ClosedTrades:       sum.Closed,
		WinningTrades:      sum.Wins,
		LosingTrades:       sum.Losses,
		TotalProfit:        round(stats.TotalProfit, 2),
		LargestWin:         round(sum.LargestWin, 2),
		LargestLoss:        round(sum.LargestLoss, 2),
		ConsecutiveWins:    stats.ConsecutiveWins,
		ConsecutiveLosses:  stats.ConsecutiveLosses,
		MaxDrawdown:        round(stats.MaxDrawdown, 2),
		MaxDrawdownPct:     round(stats.MaxDrawdownPct, 2),
		CurrentDrawdown:    round(stats.CurrentDrawdown, 2),
		CurrentDrawdownPct: round(stats.CurrentDrawdownPct, 2),
		StartingEquity:     startingEquity,
		Equity:             round(risk.Equity(stats, startingEquity), 2),
	}
	if sum.Closed > 0 {
		a.WinRate = round(float64(sum.Wins)/float64(sum.Closed)*100, 2)
	}
	if sum.Wins > 0 {
		a.AvgProfit = round(sum.GrossProfit/float64(sum.Wins), 2)
	}
	if sum.Losses > 0 {
		a.AvgLoss = round(sum.GrossLoss/float64(sum.Losses), 2)
	}
	if sum.GrossLoss < 0 {
		a.ProfitFactor = round(sum.GrossProfit/math.Abs(sum.GrossLoss), 2)
	}
	return a
}

// SnapshotEquity appends the current equity of every account to the curve.
// It runs on a schedule so flat periods still show up.
func (s *StatsService) SnapshotEquity(ctx context.Context) (int, error) {
	accts, err := s.st.Accounts.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("stats: list accounts: %w", err)
	}
	now := s.now()
	n := 0
	for _, a := range accts {
		stats, err := s.st.Stats.Get(ctx, a.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "equity snapshot skipped",
				slog.Int64("account_id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.st.Equity.Insert(ctx, domain.EquitySnapshot{
			AccountID: a.ID,
			Equity:    risk.Equity(stats, a.StartingEquity),
			At:        now,
		}); err != nil {
			return n, fmt.Errorf("stats: snapshot account %d: %w", a.ID, err)
		}
		n++
	}
	return n, nil
}
