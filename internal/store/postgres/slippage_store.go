package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// SlippageStore implements domain.SlippageStore using PostgreSQL.
type SlippageStore struct {
	db DB
}

// NewSlippageStore creates a new SlippageStore.
func NewSlippageStore(db DB) *SlippageStore {
	return &SlippageStore{db: db}
}

var _ domain.SlippageStore = (*SlippageStore)(nil)

// Insert records one execution.
func (s *SlippageStore) Insert(ctx context.Context, r domain.SlippageRecord) error {
	const query = `
		INSERT INTO slippage_records (
			position_id, ticker, expected_price, actual_price,
			slippage_amount, slippage_pct, acceptable, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := conn(ctx, s.db).Exec(ctx, query,
		r.PositionID, r.Ticker, r.ExpectedPrice, r.ActualPrice,
		r.SlippageAmount, r.SlippagePct, r.Acceptable, r.RecordedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert slippage %s: %w", r.PositionID, err)
	}
	return nil
}

// Aggregate rolls up records since the cutoff for one ticker, or all when
// ticker is empty.
func (s *SlippageStore) Aggregate(ctx context.Context, ticker string, since time.Time) (domain.SlippageAggregate, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(AVG(slippage_pct), 0),
			COALESCE(MIN(slippage_pct), 0),
			COALESCE(MAX(slippage_pct), 0),
			COUNT(*) FILTER (WHERE NOT acceptable)
		FROM slippage_records
		WHERE recorded_at >= $1 AND ($2 = '' OR ticker = $2)`

	var agg domain.SlippageAggregate
	err := conn(ctx, s.db).QueryRow(ctx, query, since, ticker).Scan(
		&agg.Count, &agg.AvgPct, &agg.MinPct, &agg.MaxPct, &agg.HighCount)
	if err != nil {
		return domain.SlippageAggregate{}, fmt.Errorf("postgres: aggregate slippage %q: %w", ticker, err)
	}
	return agg, nil
}

// Recent returns the newest records.
func (s *SlippageStore) Recent(ctx context.Context, limit int) ([]domain.SlippageRecord, error) {
	rows, err := conn(ctx, s.db).Query(ctx, `
		SELECT id, position_id, ticker, expected_price, actual_price,
			slippage_amount, slippage_pct, acceptable, recorded_at
		FROM slippage_records
		ORDER BY recorded_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent slippage: %w", err)
	}
	defer rows.Close()

	var out []domain.SlippageRecord
	for rows.Next() {
		var r domain.SlippageRecord
		if err := rows.Scan(&r.ID, &r.PositionID, &r.Ticker, &r.ExpectedPrice, &r.ActualPrice,
			&r.SlippageAmount, &r.SlippagePct, &r.Acceptable, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan slippage: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
