// Package binance consumes Binance spot trade streams over WebSocket.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

const writeWait = 10 * time.Second

// Trade is one executed trade from the stream.
type Trade struct {
	Symbol string
	Price  float64
	At     time.Time
}

type tradeMessage struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// TradeStream dials "{baseURL}/{symbol}@trade" streams.
type TradeStream struct {
	baseURL     string
	readTimeout time.Duration
	dialer      websocket.Dialer
}

// NewTradeStream creates a TradeStream.
//
// baseURL is the stream root, e.g. "wss://stream.binance.com:9443/ws". When no
// message arrives for readTimeout a ping is sent; the connection is dropped if
// nothing (message or pong) arrives for another readTimeout.
func NewTradeStream(baseURL string, readTimeout time.Duration) *TradeStream {
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &TradeStream{
		baseURL:     strings.TrimRight(baseURL, "/"),
		readTimeout: readTimeout,
		dialer:      websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

// Run connects to the trade stream of symbol (a Binance stream name such as
// "btcusdt"), calls onConnect once the handshake succeeds and onTrade for
// every trade. It returns when ctx is cancelled (nil) or the connection fails.
func (s *TradeStream) Run(ctx context.Context, symbol string, onConnect func(latency time.Duration), onTrade func(Trade)) error {
	url := fmt.Sprintf("%s/%s@trade", s.baseURL, symbol)

	start := time.Now()
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("binance: dial %s: %w", symbol, err)
	}
	if onConnect != nil {
		onConnect(time.Since(start))
	}

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	lastRead := make(chan struct{}, 1)
	touch := func() {
		_ = conn.SetReadDeadline(time.Now().Add(2 * s.readTimeout))
		select {
		case lastRead <- struct{}{}:
		default:
		}
	}
	conn.SetPongHandler(func(string) error {
		touch()
		return nil
	})
	touch()

	// Pinger: fires after readTimeout of silence. Also closes the connection
	// on ctx cancellation to unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		timer := time.NewTimer(s.readTimeout)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				closeConn()
				return
			case <-done:
				return
			case <-lastRead:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.readTimeout)
			case <-timer.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				timer.Reset(s.readTimeout)
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("binance: read %s: %w: %v", symbol, domain.ErrWSDisconnect, err)
		}
		touch()

		trade, ok := parseTrade(data)
		if !ok {
			continue
		}
		onTrade(trade)
	}
}

func parseTrade(data []byte) (Trade, bool) {
	var msg tradeMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Event != "trade" {
		return Trade{}, false
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return Trade{}, false
	}
	at := time.Now().UTC()
	if msg.TradeTime > 0 {
		at = time.UnixMilli(msg.TradeTime).UTC()
	}
	return Trade{Symbol: msg.Symbol, Price: price, At: at}, true
}
