package domain

import "time"

// PriceColor is the direction of the latest observation versus the previous one.
type PriceColor string

const (
	PriceUp        PriceColor = "up"
	PriceDown      PriceColor = "down"
	PriceUnchanged PriceColor = "unchanged"
)

// Price sources.
const (
	SourcePoller = "poller"
	SourceStream = "stream"
	SourceSignal = "signal"
)

// PriceQuote is the latest known price for a symbol.
type PriceQuote struct {
	Symbol     string     `json:"symbol"`
	Price      float64    `json:"price"`
	Color      PriceColor `json:"color"`
	Source     string     `json:"source"`
	ObservedAt time.Time  `json:"observed_at"`
}

// PriceTick is one fresh price handed to the risk engine.
type PriceTick struct {
	Symbol string
	Price  float64
	Source string
	At     time.Time
}
