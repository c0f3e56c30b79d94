// Package executor simulates order execution for signal-driven entries and
// de-duplicates repeated deliveries.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// QuoteLookup returns the latest observed quote for a symbol.
type QuoteLookup interface {
	Get(symbol string) (domain.PriceQuote, bool)
}

// Fill is the outcome of a simulated market order.
type Fill struct {
	Price    float64
	Quantity float64
	Source   string // the quote source used, or "signal"
	At       time.Time
}

// Simulator fills market orders at the alert price. Given a QuoteLookup it
// fills at the latest feed quote instead, as long as that quote is fresh.
// No order ever leaves the process.
type Simulator struct {
	quotes QuoteLookup
	maxAge time.Duration
	now    func() time.Time
}

// NewSimulator creates a Simulator. With nil quotes every fill happens at
// the alert price.
func NewSimulator(quotes QuoteLookup, maxAge time.Duration) *Simulator {
	return &Simulator{quotes: quotes, maxAge: maxAge, now: func() time.Time { return time.Now().UTC() }}
}

// Fill executes qty of ticker. The alert price is what the signal expected.
func (s *Simulator) Fill(ctx context.Context, ticker string, side domain.Side, qty, alertPrice float64) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if qty <= 0 || alertPrice <= 0 {
		return Fill{}, fmt.Errorf("executor: fill %s %s qty=%g price=%g: %w", side, ticker, qty, alertPrice, domain.ErrInvalidSignal)
	}

	now := s.now()
	fill := Fill{Price: alertPrice, Quantity: qty, Source: domain.SourceSignal, At: now}
	if s.quotes == nil {
		return fill, nil
	}
	q, ok := s.quotes.Get(ticker)
	if !ok || q.Source == domain.SourceSignal || q.Price <= 0 || now.Sub(q.ObservedAt) > s.maxAge {
		return fill, nil
	}
	fill.Price = q.Price
	fill.Source = q.Source
	return fill, nil
}
