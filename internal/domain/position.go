package domain

import (
	"strings"
	"time"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Side is the direction of a simulated position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ParseSide maps a signal action onto a position side. BUY/LONG open longs and
// SELL/SHORT open shorts; anything else reports false.
func ParseSide(action string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "BUY", "LONG":
		return SideLong, true
	case "SELL", "SHORT":
		return SideShort, true
	default:
		return "", false
	}
}

// Sign returns +1 for longs and -1 for shorts.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Close reasons written to positions.close_reason.
const (
	CloseReasonTrailingStop = "Trailing Stop"
	CloseReasonTakeProfit1  = "Take Profit 1"
	CloseReasonTakeProfit2  = "Take Profit 2"
	CloseReasonPanicPrefix  = "PANIC MODE: "
)

// Position is one simulated trade and its live risk state.
type Position struct {
	ID                string         `json:"id"`
	AccountID         int64          `json:"account_id"`
	Ticker            string         `json:"ticker"`
	Side              Side           `json:"side"`
	Quantity          float64        `json:"quantity"` // entry quantity, never changes
	RemainingQuantity float64        `json:"remaining_quantity"`
	EntryPrice        float64        `json:"entry_price"`
	CurrentPrice      float64        `json:"current_price"` // 0 until the first tick
	UnrealizedPnL     float64        `json:"unrealized_pnl"`
	UnrealizedPnLPct  float64        `json:"unrealized_pnl_pct"`
	RealizedPnL       float64        `json:"realized_pnl"`
	ExtremePrice      float64        `json:"extreme_price"` // highest seen for longs, lowest for shorts
	TrailingStop      float64        `json:"trailing_stop"` // 0 while unset
	BreakEvenActive   bool           `json:"break_even_active"`
	TP1Closed         bool           `json:"tp1_closed"`
	TP2Closed         bool           `json:"tp2_closed"`
	ExitPrice         float64        `json:"exit_price"`
	CloseReason       string         `json:"close_reason"`
	Status            PositionStatus `json:"status"`
	OpenedAt          time.Time      `json:"opened_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	ClosedAt          *time.Time     `json:"closed_at"`
}

// IsOpen reports whether the position still carries quantity.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// MarkPrice is the price a forced close should use: the last tick, or the
// entry price when no tick has been observed yet.
func (p Position) MarkPrice() float64 {
	if p.CurrentPrice > 0 {
		return p.CurrentPrice
	}
	return p.EntryPrice
}

// PartialClose records a take-profit slice of a position.
type PartialClose struct {
	ID         int64     `json:"id"`
	PositionID string    `json:"position_id"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	PnL        float64   `json:"pnl"`
	Reason     string    `json:"reason"` // TP1 or TP2
	ClosedAt   time.Time `json:"closed_at"`
}

// TradeAction classifies forensic trade log entries.
type TradeAction string

const (
	TradeActionOpen         TradeAction = "OPEN"
	TradeActionPartialClose TradeAction = "PARTIAL_CLOSE"
	TradeActionClose        TradeAction = "CLOSE"
	TradeActionPanicClose   TradeAction = "PANIC_CLOSE"
)

// TradeLog is an append-only forensic record of an entry or exit.
type TradeLog struct {
	ID         int64       `json:"id"`
	PositionID string      `json:"position_id"`
	AccountID  int64       `json:"account_id"`
	Action     TradeAction `json:"action"`
	Price      float64     `json:"price"`
	Quantity   float64     `json:"quantity"`
	Reason     string      `json:"reason"`
	CreatedAt  time.Time   `json:"created_at"`
}
