package domain

import "time"

// EntryState is the kill-switch state machine of an account.
//
//	armed --kill switch--> triggered --all closed--> disarmed --rearm--> armed
type EntryState string

const (
	EntryStateArmed     EntryState = "armed"
	EntryStateTriggered EntryState = "triggered"
	EntryStateDisarmed  EntryState = "disarmed"
)

// Account holds the per-account trading configuration the engine reads.
type Account struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	AutoEntryEnabled bool       `json:"auto_entry_enabled"`
	SimulationMode   bool       `json:"simulation_mode"`
	AutoCloseEnabled bool       `json:"auto_close_enabled"`
	TrailingEnabled  bool       `json:"trailing_enabled"`
	PositionNotional float64    `json:"position_notional"`
	StopLossPct      float64    `json:"stop_loss_pct"`
	TakeProfitPct    float64    `json:"take_profit_pct"`
	MaxOpenExposure  float64    `json:"max_open_exposure"` // 0 disables the cap
	StartingEquity   float64    `json:"starting_equity"`
	EntryState       EntryState `json:"entry_state"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AcceptsEntries reports whether signal intake may open positions for the
// account.
func (a Account) AcceptsEntries() bool {
	return a.AutoEntryEnabled && a.SimulationMode && a.EntryState == EntryStateArmed
}

// AccountStats are the running aggregates kept per account.
type AccountStats struct {
	AccountID          int64     `json:"account_id"`
	TotalTrades        int64     `json:"total_trades"`
	WinningTrades      int64     `json:"winning_trades"`
	LosingTrades       int64     `json:"losing_trades"`
	TotalProfit        float64   `json:"total_profit"`
	ConsecutiveWins    int       `json:"consecutive_wins"`
	ConsecutiveLosses  int       `json:"consecutive_losses"`
	PeakEquity         float64   `json:"peak_equity"`
	MaxDrawdown        float64   `json:"max_drawdown"`
	MaxDrawdownPct     float64   `json:"max_drawdown_pct"`
	CurrentDrawdown    float64   `json:"current_drawdown"`
	CurrentDrawdownPct float64   `json:"current_drawdown_pct"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// WinRate is the percentage of decided trades that were winners.
func (s AccountStats) WinRate() float64 {
	decided := s.WinningTrades + s.LosingTrades
	if decided == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(decided) * 100
}

// EquitySnapshot is one point of an account's equity curve.
type EquitySnapshot struct {
	AccountID int64     `json:"account_id"`
	Equity    float64   `json:"equity"`
	At        time.Time `json:"at"`
}

// TradeSummary aggregates realized PnL across closed positions.
type TradeSummary struct {
	Closed      int64   `json:"closed"`
	Wins        int64   `json:"wins"`
	Losses      int64   `json:"losses"`
	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"` // negative or zero
	LargestWin  float64 `json:"largest_win"`
	LargestLoss float64 `json:"largest_loss"` // negative or zero
}
