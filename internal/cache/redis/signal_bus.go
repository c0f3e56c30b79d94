package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultStreamMaxLen int64 = 10000
	streamPayloadField        = "payload"
	subscriberBuffer          = 128
)

// SignalBus carries live events (prices, positions, alerts) over Pub/Sub and
// keeps the accepted-signal feed in a capped stream so dashboards can tail
// it from any cursor.
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewSignalBus trims streams to roughly maxLen entries (0 means 10000).
func NewSignalBus(c *Client, maxLen int64) *SignalBus {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &SignalBus{rdb: c.Underlying(), maxLen: maxLen}
}

var _ domain.SignalBus = (*SignalBus)(nil)

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns payloads published on channel until ctx ends, then
// closes the channel. The subscription is confirmed before returning.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ps := sb.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}
	out := make(chan []byte, subscriberBuffer)
	go forward(ctx, ps, out)
	return out, nil
}

func forward(ctx context.Context, ps *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer ps.Close()
	in := ps.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}
		select {
		case out <- []byte(msg.Payload):
		case <-ctx.Done():
			return
		}
	}
}

// StreamAppend adds payload to stream, trimming approximately to maxLen.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: []any{streamPayloadField, payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" for the start)
// without blocking. Entries lacking a payload field are skipped.
func (sb *SignalBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: xread %s after %s: %w", stream, lastID, err)
	}

	var msgs []domain.StreamMessage
	for _, s := range res {
		for _, m := range s.Messages {
			// go-redis hands field values back as strings.
			if v, ok := m.Values[streamPayloadField].(string); ok {
				msgs = append(msgs, domain.StreamMessage{ID: m.ID, Payload: []byte(v)})
			}
		}
	}
	return msgs, nil
}
