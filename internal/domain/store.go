package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TxManager runs fn inside a database transaction carried by ctx. Store calls
// made with that ctx join the transaction; a nested InTx opens a savepoint so a
// failing inner step can be rolled back without losing the outer work.
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountStore persists per-account trading configuration and entry state.
type AccountStore interface {
	// Ensure inserts the account (and its stats row) when missing and returns
	// the stored version. Existing rows are left untouched.
	Ensure(ctx context.Context, acct Account) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	// GetForUpdate locks the account row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id int64) (Account, error)
	List(ctx context.Context) ([]Account, error)
	ListEntryEnabled(ctx context.Context) ([]Account, error)
	SetEntry(ctx context.Context, id int64, enabled bool, state EntryState) error
	DisableAll(ctx context.Context) (int64, error)
}

// PositionStore persists simulated positions.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// GetForUpdate locks the position row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id string) (Position, error)
	ListOpenBySymbol(ctx context.Context, ticker string) ([]Position, error)
	// ListOpenByAccountForUpdate locks every open position of the account.
	ListOpenByAccountForUpdate(ctx context.Context, accountID int64) ([]Position, error)
	List(ctx context.Context, accountID int64, status PositionStatus, opts ListOpts) ([]Position, error)
	OpenSymbols(ctx context.Context) ([]string, error)
	OpenSummary(ctx context.Context) (OpenPositionSummary, error)
	// OpenExposure is the sum of entry notional still open for the account.
	OpenExposure(ctx context.Context, accountID int64) (float64, error)
	TradeSummary(ctx context.Context, accountID int64) (TradeSummary, error)
	ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]Position, error)
	// DeleteClosed removes the given closed positions; open ids are ignored.
	DeleteClosed(ctx context.Context, ids []string) (int64, error)
}

// PartialCloseStore persists take-profit slices.
type PartialCloseStore interface {
	Insert(ctx context.Context, pc PartialClose) error
	ListByPosition(ctx context.Context, positionID string) ([]PartialClose, error)
}

// TradeLogStore persists the forensic trade log.
type TradeLogStore interface {
	Insert(ctx context.Context, entry TradeLog) error
	ListByAction(ctx context.Context, action TradeAction, limit int) ([]TradeLog, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]TradeLog, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// StatsStore persists per-account aggregate counters.
type StatsStore interface {
	Get(ctx context.Context, accountID int64) (AccountStats, error)
	// GetForUpdate locks the stats row for the rest of the transaction.
	GetForUpdate(ctx context.Context, accountID int64) (AccountStats, error)
	Save(ctx context.Context, stats AccountStats) error
	IncrementTrades(ctx context.Context, accountID int64) error
}

// EquityStore persists equity curve snapshots.
type EquityStore interface {
	Insert(ctx context.Context, snap EquitySnapshot) error
	List(ctx context.Context, accountID int64, since time.Time) ([]EquitySnapshot, error)
}

// CooldownStore persists ticker cooldowns.
type CooldownStore interface {
	Insert(ctx context.Context, c Cooldown) (Cooldown, error)
	// LatestActiveUntil returns the furthest expiry among active rows for the
	// ticker, or ErrNotFound when none are active.
	LatestActiveUntil(ctx context.Context, ticker string) (time.Time, error)
	DeactivateExpired(ctx context.Context, ticker string, now time.Time) (int64, error)
	DeactivateTicker(ctx context.Context, ticker string) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]Cooldown, error)
}

// SlippageStore persists execution slippage records.
type SlippageStore interface {
	Insert(ctx context.Context, rec SlippageRecord) error
	// Aggregate rolls up records since the given time; an empty ticker
	// aggregates every ticker.
	Aggregate(ctx context.Context, ticker string, since time.Time) (SlippageAggregate, error)
	Recent(ctx context.Context, limit int) ([]SlippageRecord, error)
}

// SignalLogStore persists inbound webhook deliveries.
type SignalLogStore interface {
	// Insert returns ErrAlreadyExists when the idempotency key was recorded
	// before.
	Insert(ctx context.Context, rec SignalRecord) error
	List(ctx context.Context, opts ListOpts) ([]SignalRecord, error)
}

// HealthStore mirrors the heartbeat for external health checks.
type HealthStore interface {
	UpsertHeartbeat(ctx context.Context, service string, at time.Time, health Health) error
	GetHeartbeat(ctx context.Context, service string) (HeartbeatRecord, error)
	UpsertConnection(ctx context.Context, cs ConnectionStatus) error
	ListConnections(ctx context.Context) ([]ConnectionStatus, error)
}

// AuditEntry is one row in the audit log.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, event string, opts ListOpts) ([]AuditEntry, error)
}
