package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	db DB
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

var _ domain.AccountStore = (*AccountStore)(nil)

const accountSelectCols = `id, name, auto_entry_enabled, simulation_mode,
	auto_close_enabled, trailing_enabled, position_notional, stop_loss_pct,
	take_profit_pct, max_open_exposure, starting_equity, entry_state,
	created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	var state string
	err := row.Scan(
		&a.ID, &a.Name, &a.AutoEntryEnabled, &a.SimulationMode,
		&a.AutoCloseEnabled, &a.TrailingEnabled, &a.PositionNotional, &a.StopLossPct,
		&a.TakeProfitPct, &a.MaxOpenExposure, &a.StartingEquity, &state,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	a.EntryState = domain.EntryState(state)
	return a, nil
}

// Ensure inserts the account and its zeroed stats row when missing. Existing
// rows are never overwritten so runtime changes (kill switch, toggles) survive
// restarts.
func (s *AccountStore) Ensure(ctx context.Context, a domain.Account) (domain.Account, error) {
	const insertAccount = `
		INSERT INTO accounts (
			id, name, auto_entry_enabled, simulation_mode, auto_close_enabled,
			trailing_enabled, position_notional, stop_loss_pct, take_profit_pct,
			max_open_exposure, starting_equity, entry_state
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	state := a.EntryState
	if state == "" {
		state = domain.EntryStateArmed
	}
	db := conn(ctx, s.db)
	if _, err := db.Exec(ctx, insertAccount,
		a.ID, a.Name, a.AutoEntryEnabled, a.SimulationMode, a.AutoCloseEnabled,
		a.TrailingEnabled, a.PositionNotional, a.StopLossPct, a.TakeProfitPct,
		a.MaxOpenExposure, a.StartingEquity, string(state),
	); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: ensure account %d: %w", a.ID, err)
	}

	const insertStats = `
		INSERT INTO account_stats (account_id, peak_equity)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO NOTHING`
	if _, err := db.Exec(ctx, insertStats, a.ID, a.StartingEquity); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: ensure stats %d: %w", a.ID, err)
	}

	return s.GetByID(ctx, a.ID)
}

// GetByID returns the account with the given id.
func (s *AccountStore) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	query := `SELECT ` + accountSelectCols + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(conn(ctx, s.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %d: %w", id, err)
	}
	return a, nil
}

// GetForUpdate returns the account and holds its row lock until the
// surrounding transaction ends.
func (s *AccountStore) GetForUpdate(ctx context.Context, id int64) (domain.Account, error) {
	query := `SELECT ` + accountSelectCols + ` FROM accounts WHERE id = $1 FOR UPDATE`
	a, err := scanAccount(conn(ctx, s.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: lock account %d: %w", id, err)
	}
	return a, nil
}

// List returns every account ordered by id.
func (s *AccountStore) List(ctx context.Context) ([]domain.Account, error) {
	return s.list(ctx, `SELECT `+accountSelectCols+` FROM accounts ORDER BY id`)
}

// ListEntryEnabled returns accounts with automated entry and simulation on.
// Entry state is checked again under the row lock when opening.
func (s *AccountStore) ListEntryEnabled(ctx context.Context) ([]domain.Account, error) {
	return s.list(ctx, `SELECT `+accountSelectCols+` FROM accounts
		WHERE auto_entry_enabled AND simulation_mode ORDER BY id`)
}

func (s *AccountStore) list(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accounts rows: %w", err)
	}
	return out, nil
}

// SetEntry updates the automated-entry flag and kill-switch state together.
func (s *AccountStore) SetEntry(ctx context.Context, id int64, enabled bool, state domain.EntryState) error {
	const query = `
		UPDATE accounts SET auto_entry_enabled = $2, entry_state = $3, updated_at = NOW()
		WHERE id = $1`
	tag, err := conn(ctx, s.db).Exec(ctx, query, id, enabled, string(state))
	if err != nil {
		return fmt.Errorf("postgres: set entry account %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DisableAll turns off automated entry on every armed account and marks it
// disarmed. It returns the number of accounts changed.
func (s *AccountStore) DisableAll(ctx context.Context) (int64, error) {
	const query = `
		UPDATE accounts SET auto_entry_enabled = FALSE, entry_state = 'disarmed', updated_at = NOW()
		WHERE entry_state = 'armed'`
	tag, err := conn(ctx, s.db).Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("postgres: disable all accounts: %w", err)
	}
	return tag.RowsAffected(), nil
}
