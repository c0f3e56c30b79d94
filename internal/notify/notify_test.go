package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFilter(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventPositionClosed, " "}, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventPositionOpened, "opened", ""))
	require.NoError(t, n.Notify(ctx, EventPositionClosed, "closed", ""))
	require.NoError(t, n.Notify(ctx, EventKillSwitch, "panic", ""))

	assert.Equal(t, []string{"closed", "panic"}, s.titles)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, nil, discardLogger())

	err := n.Notify(context.Background(), EventBreakEven, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, []string{"t"}, ok.titles, "remaining senders still receive the message")
	assert.True(t, n.Enabled())
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	assert.Equal(t, "telegram", s.Name())
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "GC=F <alert>", "body"))

	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>GC=F &lt;alert&gt;</b>\nbody", got["text"])
}

func TestTelegramSenderHidesToken(t *testing.T) {
	s := NewTelegramSender("SECRET", "1")
	s.apiBase = "http://127.0.0.1:1"
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")
}

func TestDiscordSender(t *testing.T) {
	var got struct {
		Embeds []struct {
			Title string `json:"title"`
			Color int    `json:"color"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	assert.Equal(t, "discord", d.Name())
	require.NoError(t, d.Send(context.Background(), "KILL SWITCH ACTIVATED", "x"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, 0xe74c3c, got.Embeds[0].Color)

	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer fail.Close()
	err := NewDiscordSender(fail.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestMessages(t *testing.T) {
	pos := domain.Position{
		ID: "p1", AccountID: 3, Ticker: "BTCUSD", Side: domain.SideLong,
		Quantity: 0.5, EntryPrice: 100, ExitPrice: 101.9, RealizedPnL: 24.5,
		CloseReason: domain.CloseReasonTrailingStop,
	}
	m := PositionClosed(pos)
	assert.Equal(t, EventPositionClosed, m.Event)
	assert.Equal(t, "LONG BTCUSD closed: Trailing Stop", m.Title)
	assert.Contains(t, m.Body, "Entry 100 exit 101.9")
	assert.Contains(t, m.Body, "+24.50")

	k := KillSwitch(3, "manual", 2, []string{"p9: boom"})
	assert.Contains(t, k.Body, "Positions closed: 2")
	assert.Contains(t, k.Body, "- p9: boom")

	h := HeartbeatCritical(4, 95*time.Second+300*time.Millisecond)
	assert.Contains(t, h.Body, "1m35s ago")
}

func TestAsyncDeliversAndFlushesOnCancel(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())
	a := NewAsync(n, 4, time.Second, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Notify(ctx, EventPositionOpened, "one", ""))
	require.NoError(t, a.Notify(ctx, EventPositionClosed, "two", ""))
	cancel()

	require.NoError(t, a.Run(ctx))
	assert.ElementsMatch(t, []string{"one", "two"}, s.titles)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	s := &recordingSender{name: "rec"}
	a := NewAsync(NewNotifier([]Sender{s}, nil, discardLogger()), 1, time.Second, discardLogger())
	ctx := context.Background()

	require.NoError(t, a.Notify(ctx, EventBreakEven, "kept", ""))
	require.NoError(t, a.Notify(ctx, EventBreakEven, "dropped", ""))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, a.Run(cctx))
	assert.Equal(t, []string{"kept"}, s.titles)
}
