package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

const uniqueViolation = "23505"

// SignalLogStore implements domain.SignalLogStore using PostgreSQL.
type SignalLogStore struct {
	db DB
}

// NewSignalLogStore creates a new SignalLogStore.
func NewSignalLogStore(db DB) *SignalLogStore {
	return &SignalLogStore{db: db}
}

var _ domain.SignalLogStore = (*SignalLogStore)(nil)

// Insert records a webhook delivery. A repeated idempotency key yields
// domain.ErrAlreadyExists.
func (s *SignalLogStore) Insert(ctx context.Context, r domain.SignalRecord) error {
	const query = `
		INSERT INTO signal_log (ticker, action, price, idempotency_key, outcome, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var key *string
	if r.IdempotencyKey != "" {
		key = &r.IdempotencyKey
	}
	_, err := conn(ctx, s.db).Exec(ctx, query,
		r.Ticker, r.Action, r.Price, key, r.Outcome, r.Payload, r.ReceivedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert signal %s: %w", r.Ticker, err)
	}
	return nil
}

// List returns deliveries newest first.
func (s *SignalLogStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.SignalRecord, error) {
	var f filter
	f.window("received_at", opts)
	query, args := f.build(`SELECT id, ticker, action, price, COALESCE(idempotency_key, ''), outcome, payload, received_at
		FROM signal_log`, "received_at DESC, id DESC", opts)

	rows, err := conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer rows.Close()

	var out []domain.SignalRecord
	for rows.Next() {
		var r domain.SignalRecord
		if err := rows.Scan(&r.ID, &r.Ticker, &r.Action, &r.Price, &r.IdempotencyKey,
			&r.Outcome, &r.Payload, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
