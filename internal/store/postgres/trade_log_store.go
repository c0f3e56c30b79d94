package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// TradeLogStore implements domain.TradeLogStore using PostgreSQL.
type TradeLogStore struct {
	db DB
}

// NewTradeLogStore creates a new TradeLogStore.
func NewTradeLogStore(db DB) *TradeLogStore {
	return &TradeLogStore{db: db}
}

var _ domain.TradeLogStore = (*TradeLogStore)(nil)

const tradeLogSelectCols = `id, position_id, account_id, action, price, quantity, reason, created_at`

// Insert appends a trade log entry.
func (s *TradeLogStore) Insert(ctx context.Context, e domain.TradeLog) error {
	const query = `
		INSERT INTO trade_logs (position_id, account_id, action, price, quantity, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := conn(ctx, s.db).Exec(ctx, query,
		e.PositionID, e.AccountID, string(e.Action), e.Price, e.Quantity, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert trade log %s %s: %w", e.Action, e.PositionID, err)
	}
	return nil
}

// ListByAction returns the newest entries of one action.
func (s *TradeLogStore) ListByAction(ctx context.Context, action domain.TradeAction, limit int) ([]domain.TradeLog, error) {
	return s.list(ctx, `SELECT `+tradeLogSelectCols+` FROM trade_logs
		WHERE action = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, string(action), limit)
}

// ListBefore returns up to limit entries created before the cutoff, oldest
// first.
func (s *TradeLogStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.TradeLog, error) {
	return s.list(ctx, `SELECT `+tradeLogSelectCols+` FROM trade_logs
		WHERE created_at < $1 ORDER BY created_at, id LIMIT $2`, before, limit)
}

// DeleteByIDs removes archived entries.
func (s *TradeLogStore) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	tag, err := conn(ctx, s.db).Exec(ctx, `DELETE FROM trade_logs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trade logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *TradeLogStore) list(ctx context.Context, query string, args ...any) ([]domain.TradeLog, error) {
	rows, err := conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade logs: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeLog
	for rows.Next() {
		e, err := scanTradeLog(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade log: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trade logs rows: %w", err)
	}
	return out, nil
}

func scanTradeLog(row pgx.Row) (domain.TradeLog, error) {
	var e domain.TradeLog
	var action string
	if err := row.Scan(&e.ID, &e.PositionID, &e.AccountID, &action,
		&e.Price, &e.Quantity, &e.Reason, &e.CreatedAt); err != nil {
		return domain.TradeLog{}, err
	}
	e.Action = domain.TradeAction(action)
	return e, nil
}

// PartialCloseStore implements domain.PartialCloseStore using PostgreSQL.
type PartialCloseStore struct {
	db DB
}

// NewPartialCloseStore creates a new PartialCloseStore.
func NewPartialCloseStore(db DB) *PartialCloseStore {
	return &PartialCloseStore{db: db}
}

var _ domain.PartialCloseStore = (*PartialCloseStore)(nil)

// Insert records a take-profit slice.
func (s *PartialCloseStore) Insert(ctx context.Context, pc domain.PartialClose) error {
	const query = `
		INSERT INTO partial_closes (position_id, quantity, price, pnl, reason, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := conn(ctx, s.db).Exec(ctx, query,
		pc.PositionID, pc.Quantity, pc.Price, pc.PnL, pc.Reason, pc.ClosedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert partial close %s %s: %w", pc.Reason, pc.PositionID, err)
	}
	return nil
}

// ListByPosition returns the slices of one position in execution order.
func (s *PartialCloseStore) ListByPosition(ctx context.Context, positionID string) ([]domain.PartialClose, error) {
	rows, err := conn(ctx, s.db).Query(ctx, `
		SELECT id, position_id, quantity, price, pnl, reason, closed_at
		FROM partial_closes WHERE position_id = $1 ORDER BY closed_at, id`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list partial closes %s: %w", positionID, err)
	}
	defer rows.Close()

	var out []domain.PartialClose
	for rows.Next() {
		var pc domain.PartialClose
		if err := rows.Scan(&pc.ID, &pc.PositionID, &pc.Quantity, &pc.Price,
			&pc.PnL, &pc.Reason, &pc.ClosedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan partial close: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}
