package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/metrics"
)

// Broker quality ratings.
const (
	QualityExcellent    = "Excellent"
	QualityAcceptable   = "Acceptable"
	QualityPoor         = "Poor"
	QualityCritical     = "Critical"
	QualityInsufficient = "Insufficient data"
)

const qualityWindowDays = 7

var hundred = decimal.NewFromInt(100)

// SlippageService audits the gap between the price a signal expected and the
// simulated fill.
type SlippageService struct {
	store        domain.SlippageStore
	tolerancePct decimal.Decimal
	now          func() time.Time
	logger       *slog.Logger
}

// NewSlippageService creates a SlippageService. tolerancePct is in percent
// (0.1 = 0.1%).
func NewSlippageService(store domain.SlippageStore, tolerancePct float64, logger *slog.Logger) *SlippageService {
	return &SlippageService{
		store:        store,
		tolerancePct: decimal.NewFromFloat(tolerancePct),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With(slog.String("component", "slippage")),
	}
}

// SlippageStats summarizes recorded slippage over a window.
type SlippageStats struct {
	Ticker      string  `json:"ticker,omitempty"`
	Days        int     `json:"days"`
	Count       int64   `json:"total_trades"`
	AvgPct      float64 `json:"avg_slippage"`
	MinPct      float64 `json:"min_slippage"`
	MaxPct      float64 `json:"max_slippage"`
	HighCount   int64   `json:"high_slippage_count"`
	HighRatePct float64 `json:"high_slippage_rate"`
}

// BrokerQuality scores execution quality for a ticker.
type BrokerQuality struct {
	Ticker      string   `json:"ticker"`
	Score       *float64 `json:"quality_score"`
	Rating      string   `json:"recommendation"`
	AvgPct      float64  `json:"avg_slippage"`
	HighRatePct float64  `json:"high_slippage_rate"`
	Count       int64    `json:"total_trades"`
}

// Record stores the slippage of one fill. Percent math is done in decimal so
// a fill exactly at the tolerance is acceptable.
func (s *SlippageService) Record(ctx context.Context, positionID, ticker string, expected, actual float64) (domain.SlippageRecord, error) {
	if expected <= 0 {
		return domain.SlippageRecord{}, fmt.Errorf("slippage: record %s: expected price %g: %w", ticker, expected, domain.ErrInvalidSignal)
	}
	exp := decimal.NewFromFloat(expected)
	delta := decimal.NewFromFloat(actual).Sub(exp)
	pct := delta.Div(exp).Mul(hundred)

	rec := domain.SlippageRecord{
		PositionID:     positionID,
		Ticker:         ticker,
		ExpectedPrice:  expected,
		ActualPrice:    actual,
		SlippageAmount: delta.InexactFloat64(),
		SlippagePct:    pct.Round(6).InexactFloat64(),
		Acceptable:     pct.Abs().LessThanOrEqual(s.tolerancePct),
		RecordedAt:     s.now(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return domain.SlippageRecord{}, fmt.Errorf("slippage: record %s: %w", ticker, err)
	}
	metrics.SlippagePct.Observe(rec.SlippagePct)
	if !rec.Acceptable {
		s.logger.WarnContext(ctx, "high slippage",
			slog.String("ticker", ticker),
			slog.String("position_id", positionID),
			slog.Float64("expected", expected),
			slog.Float64("actual", actual),
			slog.Float64("pct", rec.SlippagePct),
		)
	}
	return rec, nil
}

// Stats aggregates the last days of records; an empty ticker covers all.
func (s *SlippageService) Stats(ctx context.Context, ticker string, days int) (SlippageStats, error) {
	if days <= 0 {
		days = qualityWindowDays
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	agg, err := s.store.Aggregate(ctx, ticker, since)
	if err != nil {
		return SlippageStats{}, fmt.Errorf("slippage: stats %q: %w", ticker, err)
	}
	st := SlippageStats{Ticker: ticker, Days: days, Count: agg.Count, HighCount: agg.HighCount}
	if agg.Count == 0 {
		return st, nil
	}
	st.AvgPct = round(agg.AvgPct, 4)
	st.MinPct = round(agg.MinPct, 4)
	st.MaxPct = round(agg.MaxPct, 4)
	st.HighRatePct = decimal.NewFromInt(agg.HighCount).
		Div(decimal.NewFromInt(agg.Count)).Mul(hundred).Round(2).InexactFloat64()
	return st, nil
}

// BrokerQuality scores the ticker over the last week:
// max(0, 100 - 10*high_rate - 500*|avg|).
func (s *SlippageService) BrokerQuality(ctx context.Context, ticker string) (BrokerQuality, error) {
	st, err := s.Stats(ctx, ticker, qualityWindowDays)
	if err != nil {
		return BrokerQuality{}, err
	}
	q := BrokerQuality{Ticker: ticker, Count: st.Count}
	if st.Count == 0 {
		q.Rating = QualityInsufficient
		return q, nil
	}
	q.AvgPct = st.AvgPct
	q.HighRatePct = st.HighRatePct

	score := hundred.
		Sub(decimal.NewFromFloat(st.HighRatePct).Mul(decimal.NewFromInt(10))).
		Sub(decimal.NewFromFloat(st.AvgPct).Abs().Mul(decimal.NewFromInt(500)))
	if score.IsNegative() {
		score = decimal.Zero
	}
	v := score.Round(2).InexactFloat64()
	q.Score = &v
	q.Rating = qualityRating(v)
	return q, nil
}

func qualityRating(score float64) string {
	switch {
	case score >= 80:
		return QualityExcellent
	case score >= 60:
		return QualityAcceptable
	case score >= 40:
		return QualityPoor
	default:
		return QualityCritical
	}
}

// Recent returns the newest records, 20 by default.
func (s *SlippageService) Recent(ctx context.Context, limit int) ([]domain.SlippageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	recs, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("slippage: recent: %w", err)
	}
	return recs, nil
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
