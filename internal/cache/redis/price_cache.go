package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each symbol's latest quote is stored at "quote:{symbol}" with fields
// "price", "color", "source" and "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. Quotes not
// refreshed within ttl expire; zero keeps them forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// SetQuote stores the latest quote for a symbol.
func (pc *PriceCache) SetQuote(ctx context.Context, q domain.PriceQuote) error {
	key := quoteKey(q.Symbol)
	fields := map[string]interface{}{
		"price":  strconv.FormatFloat(q.Price, 'f', -1, 64),
		"color":  string(q.Color),
		"source": q.Source,
		"ts":     strconv.FormatInt(q.ObservedAt.UnixNano(), 10),
	}

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a symbol.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetQuote(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	q, err := parseQuote(symbol, vals)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PriceQuote{}, err
		}
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote %s: %w", symbol, err)
	}
	return q, nil
}

// GetQuotes retrieves the latest quotes for multiple symbols using a
// pipeline. Symbols without a cached quote are omitted from the result.
func (pc *PriceCache) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	if len(symbols) == 0 {
		return map[string]domain.PriceQuote{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, quoteKey(sym))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.PriceQuote, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		q, err := parseQuote(sym, vals)
		if err != nil {
			continue
		}
		result[sym] = q
	}
	return result, nil
}

func parseQuote(symbol string, vals map[string]string) (domain.PriceQuote, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return domain.PriceQuote{
		Symbol:     symbol,
		Price:      price,
		Color:      domain.PriceColor(vals["color"]),
		Source:     vals["source"],
		ObservedAt: time.Unix(0, tsNano).UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
