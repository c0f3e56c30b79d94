package domain

import "time"

// Signal is an inbound trading alert.
type Signal struct {
	Ticker         string
	Price          float64
	Action         string // empty for a price update
	Quantity       float64
	IdempotencyKey string
	Raw            []byte
	ReceivedAt     time.Time
}

// Signal outcomes recorded in signal_log.
const (
	SignalOutcomeTick      = "tick"
	SignalOutcomeOpened    = "opened"
	SignalOutcomeDropped   = "dropped"
	SignalOutcomeDuplicate = "duplicate"
	SignalOutcomeRejected  = "rejected"
)

// SignalRecord is a persisted webhook delivery.
type SignalRecord struct {
	ID             int64     `json:"id"`
	Ticker         string    `json:"ticker"`
	Action         string    `json:"action"`
	Price          float64   `json:"price"`
	IdempotencyKey string    `json:"idempotency_key"`
	Outcome        string    `json:"outcome"`
	Payload        []byte    `json:"-"`
	ReceivedAt     time.Time `json:"received_at"`
}
