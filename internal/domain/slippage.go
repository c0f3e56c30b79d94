package domain

import "time"

// SlippageRecord is one execution audit entry.
type SlippageRecord struct {
	ID             int64     `json:"id"`
	PositionID     string    `json:"position_id"`
	Ticker         string    `json:"ticker"`
	ExpectedPrice  float64   `json:"expected_price"`
	ActualPrice    float64   `json:"actual_price"`
	SlippageAmount float64   `json:"slippage_amount"`
	SlippagePct    float64   `json:"slippage_pct"`
	Acceptable     bool      `json:"acceptable"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// SlippageAggregate is the raw rollup returned by the store.
type SlippageAggregate struct {
	Count     int64
	AvgPct    float64
	MinPct    float64
	MaxPct    float64
	HighCount int64
}
