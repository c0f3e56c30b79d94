package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL.
type StatsStore struct {
	db DB
}

// NewStatsStore creates a new StatsStore.
func NewStatsStore(db DB) *StatsStore {
	return &StatsStore{db: db}
}

var _ domain.StatsStore = (*StatsStore)(nil)

const statsSelectCols = `account_id, total_trades, winning_trades, losing_trades,
	total_profit, consecutive_wins, consecutive_losses, peak_equity,
	max_drawdown, max_drawdown_pct, current_drawdown, current_drawdown_pct, updated_at`

func (s *StatsStore) get(ctx context.Context, query string, accountID int64) (domain.AccountStats, error) {
	var st domain.AccountStats
	err := conn(ctx, s.db).QueryRow(ctx, query, accountID).Scan(
		&st.AccountID, &st.TotalTrades, &st.WinningTrades, &st.LosingTrades,
		&st.TotalProfit, &st.ConsecutiveWins, &st.ConsecutiveLosses, &st.PeakEquity,
		&st.MaxDrawdown, &st.MaxDrawdownPct, &st.CurrentDrawdown, &st.CurrentDrawdownPct, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AccountStats{}, domain.ErrNotFound
		}
		return domain.AccountStats{}, fmt.Errorf("postgres: get stats %d: %w", accountID, err)
	}
	return st, nil
}

// Get returns the stats row of an account.
func (s *StatsStore) Get(ctx context.Context, accountID int64) (domain.AccountStats, error) {
	return s.get(ctx, `SELECT `+statsSelectCols+` FROM account_stats WHERE account_id = $1`, accountID)
}

// GetForUpdate returns the stats row and locks it for the rest of the
// transaction.
func (s *StatsStore) GetForUpdate(ctx context.Context, accountID int64) (domain.AccountStats, error) {
	return s.get(ctx, `SELECT `+statsSelectCols+` FROM account_stats WHERE account_id = $1 FOR UPDATE`, accountID)
}

// Save writes every aggregate column back.
func (s *StatsStore) Save(ctx context.Context, st domain.AccountStats) error {
	const query = `
		UPDATE account_stats SET
			total_trades         = $2,
			winning_trades       = $3,
			losing_trades        = $4,
			total_profit         = $5,
			consecutive_wins     = $6,
			consecutive_losses   = $7,
			peak_equity          = $8,
			max_drawdown         = $9,
			max_drawdown_pct     = $10,
			current_drawdown     = $11,
			current_drawdown_pct = $12,
			updated_at           = $13
		WHERE account_id = $1`

	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	tag, err := conn(ctx, s.db).Exec(ctx, query,
		st.AccountID, st.TotalTrades, st.WinningTrades, st.LosingTrades,
		st.TotalProfit, st.ConsecutiveWins, st.ConsecutiveLosses, st.PeakEquity,
		st.MaxDrawdown, st.MaxDrawdownPct, st.CurrentDrawdown, st.CurrentDrawdownPct, updated,
	)
	if err != nil {
		return fmt.Errorf("postgres: save stats %d: %w", st.AccountID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementTrades bumps the opened-trade counter.
func (s *StatsStore) IncrementTrades(ctx context.Context, accountID int64) error {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`UPDATE account_stats SET total_trades = total_trades + 1, updated_at = NOW() WHERE account_id = $1`,
		accountID)
	if err != nil {
		return fmt.Errorf("postgres: increment trades %d: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// EquityStore implements domain.EquityStore using PostgreSQL.
type EquityStore struct {
	db DB
}

// NewEquityStore creates a new EquityStore.
func NewEquityStore(db DB) *EquityStore {
	return &EquityStore{db: db}
}

var _ domain.EquityStore = (*EquityStore)(nil)

// Insert appends one equity curve point.
func (s *EquityStore) Insert(ctx context.Context, snap domain.EquitySnapshot) error {
	_, err := conn(ctx, s.db).Exec(ctx,
		`INSERT INTO equity_curve (account_id, equity, recorded_at) VALUES ($1, $2, $3)`,
		snap.AccountID, snap.Equity, snap.At)
	if err != nil {
		return fmt.Errorf("postgres: insert equity snapshot %d: %w", snap.AccountID, err)
	}
	return nil
}

// List returns the account's curve since the given time in time order.
func (s *EquityStore) List(ctx context.Context, accountID int64, since time.Time) ([]domain.EquitySnapshot, error) {
	rows, err := conn(ctx, s.db).Query(ctx, `
		SELECT account_id, equity, recorded_at FROM equity_curve
		WHERE account_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at, id`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list equity curve %d: %w", accountID, err)
	}
	defer rows.Close()

	var out []domain.EquitySnapshot
	for rows.Next() {
		var e domain.EquitySnapshot
		if err := rows.Scan(&e.AccountID, &e.Equity, &e.At); err != nil {
			return nil, fmt.Errorf("postgres: scan equity snapshot: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
