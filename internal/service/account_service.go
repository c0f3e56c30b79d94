package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/signalguard/internal/config"
	"github.com/alanyoungcy/signalguard/internal/domain"
)

// AccountService initializes accounts and exposes their entry toggles.
type AccountService struct {
	st     Stores
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(st Stores, logger *slog.Logger) *AccountService {
	return &AccountService{st: st, logger: logger.With(slog.String("component", "accounts"))}
}

// AccountFromConfig maps a configured account onto the domain type. New
// accounts start armed.
func AccountFromConfig(c config.AccountConfig) domain.Account {
	return domain.Account{
		ID:               c.ID,
		Name:             c.Name,
		AutoEntryEnabled: c.AutoEntry,
		SimulationMode:   c.SimulationMode,
		AutoCloseEnabled: c.AutoClose,
		TrailingEnabled:  c.Trailing,
		PositionNotional: c.PositionNotional,
		StopLossPct:      c.StopLossPct,
		TakeProfitPct:    c.TakeProfitPct,
		MaxOpenExposure:  c.MaxOpenExposure,
		StartingEquity:   c.StartingEquity,
		EntryState:       domain.EntryStateArmed,
	}
}

// EnsureAccounts creates missing accounts and their stats rows. Accounts
// that already exist keep their stored settings and state.
func (s *AccountService) EnsureAccounts(ctx context.Context, accounts []domain.Account) error {
	for _, a := range accounts {
		stored, err := s.st.Accounts.Ensure(ctx, a)
		if err != nil {
			return fmt.Errorf("accounts: ensure %d: %w", a.ID, err)
		}
		s.logger.InfoContext(ctx, "account ready",
			slog.Int64("account_id", stored.ID),
			slog.String("name", stored.Name),
			slog.String("entry_state", string(stored.EntryState)),
			slog.Bool("auto_entry", stored.AutoEntryEnabled),
			slog.Bool("trailing", stored.TrailingEnabled),
		)
	}
	return nil
}

// List returns every account.
func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	accts, err := s.st.Accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounts: list: %w", err)
	}
	return accts, nil
}

// Get returns one account.
func (s *AccountService) Get(ctx context.Context, id int64) (domain.Account, error) {
	a, err := s.st.Accounts.GetByID(ctx, id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("accounts: get %d: %w", id, err)
	}
	return a, nil
}

// SetAutoEntry flips automated entry on an armed account. Turning entry on
// for a triggered or disarmed account is refused; use Rearm.
func (s *AccountService) SetAutoEntry(ctx context.Context, id int64, enabled bool) (domain.Account, error) {
	var acct domain.Account
	err := s.st.Tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.st.Accounts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if enabled && a.EntryState != domain.EntryStateArmed {
			return fmt.Errorf("enable entry in state %s: %w", a.EntryState, domain.ErrInvalidTransition)
		}
		if err := s.st.Accounts.SetEntry(ctx, id, enabled, a.EntryState); err != nil {
			return err
		}
		a.AutoEntryEnabled = enabled
		acct = a
		return nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("accounts: set auto entry %d: %w", id, err)
	}
	audit(ctx, s.st.Audit, "auto_entry_changed", map[string]any{"account_id": id, "enabled": enabled}, s.logger)
	return acct, nil
}
