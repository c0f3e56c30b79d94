package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

type txKey struct{}

// TxManager implements domain.TxManager. The active pgx.Tx travels in the
// context so every store call made with that context joins it.
type TxManager struct {
	db DB
}

// NewTxManager creates a TxManager that opens transactions on db.
func NewTxManager(db DB) *TxManager {
	return &TxManager{db: db}
}

var _ domain.TxManager = (*TxManager)(nil)

// InTx runs fn in a transaction. Called with a context that already carries a
// transaction, it opens a savepoint instead; rolling that back leaves the
// enclosing transaction usable.
func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := conn(ctx, m.db).Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		// Roll back even when ctx is already cancelled.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("postgres: rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// conn returns the transaction carried by ctx, falling back to db.
func conn(ctx context.Context, db DB) DB {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}
