package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// Board keeps the latest quote per symbol and the direction of the last
// change. It is safe for concurrent use and owned by whoever constructs it.
type Board struct {
	mu         sync.RWMutex
	quotes     map[string]domain.PriceQuote
	lastStream map[string]time.Time
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{
		quotes:     make(map[string]domain.PriceQuote),
		lastStream: make(map[string]time.Time),
	}
}

// Update records an observation and returns the resulting quote with its
// color relative to the previous one.
func (b *Board) Update(symbol string, price float64, source string, at time.Time) domain.PriceQuote {
	b.mu.Lock()
	defer b.mu.Unlock()

	color := domain.PriceUnchanged
	if prev, ok := b.quotes[symbol]; ok {
		switch {
		case price > prev.Price:
			color = domain.PriceUp
		case price < prev.Price:
			color = domain.PriceDown
		}
	}
	q := domain.PriceQuote{
		Symbol:     symbol,
		Price:      price,
		Color:      color,
		Source:     source,
		ObservedAt: at,
	}
	b.quotes[symbol] = q
	if source == domain.SourceStream {
		b.lastStream[symbol] = at
	}
	return q
}

// Get returns the latest quote for symbol.
func (b *Board) Get(symbol string) (domain.PriceQuote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[symbol]
	return q, ok
}

// All returns every quote sorted by symbol.
func (b *Board) All() []domain.PriceQuote {
	b.mu.RLock()
	out := make([]domain.PriceQuote, 0, len(b.quotes))
	for _, q := range b.quotes {
		out = append(out, q)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// StreamFresh reports whether a stream observation for symbol arrived within
// maxAge of now.
func (b *Board) StreamFresh(symbol string, maxAge time.Duration, now time.Time) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	at, ok := b.lastStream[symbol]
	return ok && now.Sub(at) < maxAge
}
