package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	db DB
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(db DB) *PositionStore {
	return &PositionStore{db: db}
}

var _ domain.PositionStore = (*PositionStore)(nil)

const positionSelectCols = `id, account_id, ticker, side, quantity, remaining_quantity,
	entry_price, current_price, unrealized_pnl, unrealized_pnl_pct, realized_pnl,
	extreme_price, trailing_stop, break_even_active, tp1_closed, tp2_closed,
	exit_price, close_reason, status, opened_at, updated_at, closed_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Ticker, &side, &p.Quantity, &p.RemainingQuantity,
		&p.EntryPrice, &p.CurrentPrice, &p.UnrealizedPnL, &p.UnrealizedPnLPct, &p.RealizedPnL,
		&p.ExtremePrice, &p.TrailingStop, &p.BreakEvenActive, &p.TP1Closed, &p.TP2Closed,
		&p.ExitPrice, &p.CloseReason, &status, &p.OpenedAt, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func (s *PositionStore) query(ctx context.Context, what, query string, args ...any) ([]domain.Position, error) {
	rows, err := conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", what, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", what, err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return positions, nil
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, account_id, ticker, side, quantity, remaining_quantity,
			entry_price, current_price, unrealized_pnl, unrealized_pnl_pct, realized_pnl,
			extreme_price, trailing_stop, break_even_active, tp1_closed, tp2_closed,
			exit_price, close_reason, status, opened_at, updated_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22
		)`

	_, err := conn(ctx, s.db).Exec(ctx, query,
		p.ID, p.AccountID, p.Ticker, string(p.Side), p.Quantity, p.RemainingQuantity,
		p.EntryPrice, p.CurrentPrice, p.UnrealizedPnL, p.UnrealizedPnLPct, p.RealizedPnL,
		p.ExtremePrice, p.TrailingStop, p.BreakEvenActive, p.TP1Closed, p.TP2Closed,
		p.ExitPrice, p.CloseReason, string(p.Status), p.OpenedAt, p.UpdatedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update writes back the mutable risk state of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			remaining_quantity = $2,
			current_price      = $3,
			unrealized_pnl     = $4,
			unrealized_pnl_pct = $5,
			realized_pnl       = $6,
			extreme_price      = $7,
			trailing_stop      = $8,
			break_even_active  = $9,
			tp1_closed         = $10,
			tp2_closed         = $11,
			exit_price         = $12,
			close_reason       = $13,
			status             = $14,
			updated_at         = $15,
			closed_at          = $16
		WHERE id = $1`

	tag, err := conn(ctx, s.db).Exec(ctx, query,
		p.ID, p.RemainingQuantity,
		p.CurrentPrice, p.UnrealizedPnL, p.UnrealizedPnLPct, p.RealizedPnL,
		p.ExtremePrice, p.TrailingStop, p.BreakEvenActive, p.TP1Closed, p.TP2Closed,
		p.ExitPrice, p.CloseReason, string(p.Status), p.UpdatedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	return s.get(ctx, `SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)
}

// GetForUpdate retrieves a position and locks its row for the rest of the
// transaction.
func (s *PositionStore) GetForUpdate(ctx context.Context, id string) (domain.Position, error) {
	return s.get(ctx, `SELECT `+positionSelectCols+` FROM positions WHERE id = $1 FOR UPDATE`, id)
}

func (s *PositionStore) get(ctx context.Context, query, id string) (domain.Position, error) {
	p, err := scanPosition(conn(ctx, s.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpenBySymbol returns the open positions on ticker, oldest first.
func (s *PositionStore) ListOpenBySymbol(ctx context.Context, ticker string) ([]domain.Position, error) {
	return s.query(ctx, "list open positions by symbol",
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE ticker = $1 AND status = 'open'
		 ORDER BY opened_at`, ticker)
}

// ListOpenByAccountForUpdate returns and locks the open positions of an
// account.
func (s *PositionStore) ListOpenByAccountForUpdate(ctx context.Context, accountID int64) ([]domain.Position, error) {
	return s.query(ctx, "lock open positions",
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE account_id = $1 AND status = 'open'
		 ORDER BY opened_at
		 FOR UPDATE`, accountID)
}

// List returns positions filtered by account (0 = all) and status ("" = all).
func (s *PositionStore) List(ctx context.Context, accountID int64, status domain.PositionStatus, opts domain.ListOpts) ([]domain.Position, error) {
	var f filter
	if accountID > 0 {
		f.where("account_id = ?", accountID)
	}
	if status != "" {
		f.where("status = ?", string(status))
	}
	f.window("opened_at", opts)
	query, args := f.build(`SELECT `+positionSelectCols+` FROM positions`, "opened_at DESC", opts)

	return s.query(ctx, "list positions", query, args...)
}

// OpenSymbols returns the distinct tickers that have open positions.
func (s *PositionStore) OpenSymbols(ctx context.Context) ([]string, error) {
	rows, err := conn(ctx, s.db).Query(ctx,
		`SELECT DISTINCT ticker FROM positions WHERE status = 'open' ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("postgres: scan open symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// OpenSummary counts open positions and reports the newest update among them.
func (s *PositionStore) OpenSummary(ctx context.Context) (domain.OpenPositionSummary, error) {
	var sum domain.OpenPositionSummary
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT COUNT(*), MAX(updated_at) FROM positions WHERE status = 'open'`,
	).Scan(&sum.Count, &sum.LastUpdate)
	if err != nil {
		return domain.OpenPositionSummary{}, fmt.Errorf("postgres: open position summary: %w", err)
	}
	return sum, nil
}

// OpenExposure sums the entry notional still open for the account.
func (s *PositionStore) OpenExposure(ctx context.Context, accountID int64) (float64, error) {
	var exposure float64
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT COALESCE(SUM(entry_price * remaining_quantity), 0)
		 FROM positions WHERE account_id = $1 AND status = 'open'`, accountID,
	).Scan(&exposure)
	if err != nil {
		return 0, fmt.Errorf("postgres: open exposure %d: %w", accountID, err)
	}
	return exposure, nil
}

// TradeSummary aggregates realized PnL over the account's closed positions.
func (s *PositionStore) TradeSummary(ctx context.Context, accountID int64) (domain.TradeSummary, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE realized_pnl > 0),
			COUNT(*) FILTER (WHERE realized_pnl <= 0),
			COALESCE(SUM(realized_pnl) FILTER (WHERE realized_pnl > 0), 0),
			COALESCE(SUM(realized_pnl) FILTER (WHERE realized_pnl < 0), 0),
			COALESCE(MAX(realized_pnl) FILTER (WHERE realized_pnl > 0), 0),
			COALESCE(MIN(realized_pnl) FILTER (WHERE realized_pnl < 0), 0)
		FROM positions
		WHERE account_id = $1 AND status = 'closed'`

	var ts domain.TradeSummary
	err := conn(ctx, s.db).QueryRow(ctx, query, accountID).Scan(
		&ts.Closed, &ts.Wins, &ts.Losses,
		&ts.GrossProfit, &ts.GrossLoss, &ts.LargestWin, &ts.LargestLoss,
	)
	if err != nil {
		return domain.TradeSummary{}, fmt.Errorf("postgres: trade summary %d: %w", accountID, err)
	}
	return ts, nil
}

// ListClosedBefore returns up to limit positions closed before the cutoff,
// oldest first.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Position, error) {
	return s.query(ctx, "list closed positions",
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed' AND closed_at < $1
		 ORDER BY closed_at
		 LIMIT $2`, before, limit)
}

// DeleteClosed removes the given positions if they are closed. Partial
// closes cascade.
func (s *PositionStore) DeleteClosed(ctx context.Context, ids []string) (int64, error) {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`DELETE FROM positions WHERE id = ANY($1) AND status = 'closed'`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed positions: %w", err)
	}
	return tag.RowsAffected(), nil
}
