package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/service"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type fakeSignals struct {
	got []domain.Signal
	res service.SignalResult
	err error
}

func (f *fakeSignals) HandleSignal(_ context.Context, sig domain.Signal) (service.SignalResult, error) {
	f.got = append(f.got, sig)
	return f.res, f.err
}

type fakeSignalLog struct{ opts domain.ListOpts }

func (f *fakeSignalLog) List(_ context.Context, opts domain.ListOpts) ([]domain.SignalRecord, error) {
	f.opts = opts
	return nil, nil
}

func TestWebhookReceive(t *testing.T) {
	post := func(h *WebhookHandler, body string, header map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
		for k, v := range header {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		h.Receive(rec, req)
		return rec
	}

	t.Run("rejects a wrong secret", func(t *testing.T) {
		sigs := &fakeSignals{}
		h := NewWebhookHandler(sigs, &fakeSignalLog{}, "s3cret", discard())
		rec := post(h, `{"ticker":"BTCUSD","price":100,"secret":"nope"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, sigs.got)
	})

	t.Run("accepts string numbers and symbol alias", func(t *testing.T) {
		sigs := &fakeSignals{res: service.SignalResult{Success: true, Outcome: "opened", Opened: 1}}
		h := NewWebhookHandler(sigs, &fakeSignalLog{}, "s3cret", discard())
		rec := post(h, `{"symbol":"ETHUSD","price":"2500.5","action":"buy","quantity":"2","secret":"s3cret"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, sigs.got, 1)
		sig := sigs.got[0]
		assert.Equal(t, "ETHUSD", sig.Ticker)
		assert.Equal(t, 2500.5, sig.Price)
		assert.Equal(t, 2.0, sig.Quantity)
		assert.Equal(t, "buy", sig.Action)
		assert.NotContains(t, string(sig.Raw), "s3cret")
		assert.Equal(t, "opened", decode(t, rec)["outcome"])
	})

	t.Run("header idempotency key wins", func(t *testing.T) {
		sigs := &fakeSignals{}
		h := NewWebhookHandler(sigs, &fakeSignalLog{}, "", discard())
		post(h, `{"ticker":"BTCUSD","price":1,"idempotency_key":"body"}`, map[string]string{"Idempotency-Key": "hdr"})
		require.Len(t, sigs.got, 1)
		assert.Equal(t, "hdr", sigs.got[0].IdempotencyKey)
	})

	t.Run("rejects garbage price", func(t *testing.T) {
		h := NewWebhookHandler(&fakeSignals{}, &fakeSignalLog{}, "", discard())
		rec := post(h, `{"ticker":"BTCUSD","price":"abc"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps service errors", func(t *testing.T) {
		cases := []struct {
			err  error
			want int
		}{
			{fmt.Errorf("signal: %w", domain.ErrInvalidSignal), http.StatusBadRequest},
			{fmt.Errorf("signal: %w", domain.ErrAlreadyExists), http.StatusConflict},
			{errors.New("db down"), http.StatusInternalServerError},
		}
		for _, tc := range cases {
			sigs := &fakeSignals{err: tc.err}
			h := NewWebhookHandler(sigs, &fakeSignalLog{}, "", discard())
			rec := post(h, `{"ticker":"BTCUSD","price":1}`, nil)
			assert.Equal(t, tc.want, rec.Code, tc.err.Error())
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["message"])
		}
	})
}

func TestListSignalsPaginates(t *testing.T) {
	log := &fakeSignalLog{}
	h := NewWebhookHandler(&fakeSignals{}, log, "", discard())
	rec := httptest.NewRecorder()
	h.ListSignals(rec, httptest.NewRequest(http.MethodGet, "/api/signals?limit=900&offset=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	assert.Equal(t, domain.ListOpts{Limit: 500, Offset: 5}, log.opts)
}

type fakeCooldowns struct {
	activated struct {
		ticker, reason string
		d              time.Duration
	}
	status service.CooldownStatus
	err    error
}

func (f *fakeCooldowns) Activate(_ context.Context, ticker, reason string, d time.Duration) (domain.Cooldown, error) {
	f.activated.ticker, f.activated.reason, f.activated.d = ticker, reason, d
	if f.err != nil {
		return domain.Cooldown{}, f.err
	}
	return domain.Cooldown{ID: 1, Ticker: ticker, Reason: reason, Active: true}, nil
}

func (f *fakeCooldowns) Status(_ context.Context, _ string) (service.CooldownStatus, error) {
	return f.status, f.err
}

func (f *fakeCooldowns) Deactivate(_ context.Context, _ string) (int64, error) { return 1, f.err }

func (f *fakeCooldowns) ListActive(_ context.Context) ([]service.ActiveCooldown, error) {
	return []service.ActiveCooldown{{
		Cooldown:  domain.Cooldown{ID: 3, Ticker: "BTCUSD", Active: true},
		Remaining: 12*time.Minute + 29*time.Second,
	}}, f.err
}

func TestCooldownHandler(t *testing.T) {
	t.Run("activate defaults reason and normalizes ticker", func(t *testing.T) {
		svc := &fakeCooldowns{}
		h := NewCooldownHandler(svc, discard())
		rec := httptest.NewRecorder()
		h.Activate(rec, httptest.NewRequest(http.MethodPost, "/api/cooldowns", strings.NewReader(`{"ticker":" btcusd ","minutes":30}`)))

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "BTCUSD", svc.activated.ticker)
		assert.Equal(t, "manual", svc.activated.reason)
		assert.Equal(t, 30*time.Minute, svc.activated.d)
	})

	t.Run("activate surfaces validation errors", func(t *testing.T) {
		svc := &fakeCooldowns{err: fmt.Errorf("cooldown: empty ticker: %w", domain.ErrInvalidSignal)}
		h := NewCooldownHandler(svc, discard())
		rec := httptest.NewRecorder()
		h.Activate(rec, httptest.NewRequest(http.MethodPost, "/api/cooldowns", strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec)["error"], "empty ticker")
	})

	t.Run("status reads the path ticker", func(t *testing.T) {
		until := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		svc := &fakeCooldowns{status: service.CooldownStatus{Ticker: "ETHUSD", Locked: true, Until: &until, Remaining: 90 * time.Second}}
		h := NewCooldownHandler(svc, discard())
		req := httptest.NewRequest(http.MethodGet, "/api/cooldowns/ethusd", nil)
		req.SetPathValue("ticker", "ethusd")
		rec := httptest.NewRecorder()
		h.Status(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["locked"])
		assert.Equal(t, 1.5, body["remaining_minutes"])
	})

	t.Run("list truncates remaining minutes", func(t *testing.T) {
		h := NewCooldownHandler(&fakeCooldowns{}, discard())
		rec := httptest.NewRecorder()
		h.ListActive(rec, httptest.NewRequest(http.MethodGet, "/api/cooldowns", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var out []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Len(t, out, 1)
		assert.Equal(t, 12.4, out[0]["remaining_minutes"])
	})
}

type fakePanic struct {
	res     service.KillSwitchResult
	err     error
	account int64
	reason  string
}

func (f *fakePanic) ExecuteKillSwitch(_ context.Context, accountID int64, reason string) (service.KillSwitchResult, error) {
	f.account, f.reason = accountID, reason
	return f.res, f.err
}

func (f *fakePanic) DisableGlobally(context.Context) (int64, error) { return 2, nil }

func (f *fakePanic) History(context.Context, int) ([]domain.TradeLog, error) { return nil, nil }

func TestPanicKillSwitch(t *testing.T) {
	call := func(svc *fakePanic, account, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/panic/"+account, strings.NewReader(body))
		req.SetPathValue("account", account)
		rec := httptest.NewRecorder()
		NewPanicHandler(svc, discard()).KillSwitch(rec, req)
		return rec
	}

	t.Run("partial failures still answer 200", func(t *testing.T) {
		svc := &fakePanic{res: service.KillSwitchResult{Success: true, AccountID: 7, PositionsClosed: 1, Errors: []string{"pos-2: timeout"}}}
		rec := call(svc, "7", `{"reason":"drawdown"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(7), svc.account)
		assert.Equal(t, "drawdown", svc.reason)
		body := decode(t, rec)
		assert.Equal(t, float64(1), body["positions_closed"])
		assert.Len(t, body["errors"], 1)
	})

	t.Run("unknown account", func(t *testing.T) {
		svc := &fakePanic{err: fmt.Errorf("panic: account 9: %w", domain.ErrNotFound)}
		rec := call(svc, "9", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, false, decode(t, rec)["success"])
	})

	t.Run("bad account id", func(t *testing.T) {
		rec := call(&fakePanic{}, "abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lock held is a conflict", func(t *testing.T) {
		svc := &fakePanic{err: fmt.Errorf("panic: %w", domain.ErrLockHeld)}
		rec := call(svc, "1", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

type staticConns []domain.ConnectionStatus

func (s staticConns) ListConnections(context.Context) ([]domain.ConnectionStatus, error) {
	out := make([]domain.ConnectionStatus, len(s))
	copy(out, s)
	return out, nil
}

type staticStreams []string

func (s staticStreams) Streaming() []string { return s }

type emptyBoard struct{}

func (emptyBoard) All() []domain.PriceQuote { return []domain.PriceQuote{} }
func (emptyBoard) Get(string) (domain.PriceQuote, bool) { return domain.PriceQuote{}, false }

func TestFeedStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	status := func(conns staticConns) map[string]any {
		h := NewFeedHandler(emptyBoard{}, conns, staticStreams{"BTCUSD"}, time.Minute, discard())
		h.now = func() time.Time { return now }
		rec := httptest.NewRecorder()
		h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/feed/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		return decode(t, rec)
	}

	t.Run("freshest connected source is the headline", func(t *testing.T) {
		body := status(staticConns{
			{Source: "yahoo", Status: "connected", LatencyMS: 300, UpdatedAt: now.Add(-30 * time.Second)},
			{Source: "binance", Status: "connected", LatencyMS: 40, UpdatedAt: now.Add(-2 * time.Second)},
		})
		assert.Equal(t, "connected", body["status"])
		assert.Equal(t, "binance", body["source"])
		assert.Equal(t, float64(40), body["latency_ms"])
		assert.Equal(t, []any{"BTCUSD"}, body["streaming"])
	})

	t.Run("stale connected source is disconnected", func(t *testing.T) {
		body := status(staticConns{
			{Source: "binance", Status: "connected", UpdatedAt: now.Add(-5 * time.Minute)},
		})
		assert.Equal(t, "disconnected", body["status"])
		sources := body["sources"].([]any)
		assert.Equal(t, "disconnected", sources[0].(map[string]any)["status"])
	})

	t.Run("error reported when the only source failed", func(t *testing.T) {
		body := status(staticConns{
			{Source: "yahoo", Status: "error", UpdatedAt: now.Add(-5 * time.Second)},
		})
		assert.Equal(t, "error", body["status"])
		assert.Equal(t, "yahoo", body["source"])
	})
}

func TestHealthCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	bad := func(context.Context) error { return errors.New("connection refused") }

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]HealthCheck{"postgres": ok, "redis": ok}, discard()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]HealthCheck{"postgres": ok, "redis": bad}, discard()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "ok", deps["postgres"])
	assert.Contains(t, deps["redis"], "connection refused")
}

type fakeJobs struct{ ran []string }

func (f *fakeJobs) RunNow(_ context.Context, name string) error {
	if name != "archive" {
		return fmt.Errorf("scheduler: unknown job %q: %w", name, domain.ErrNotFound)
	}
	f.ran = append(f.ran, name)
	return nil
}

func TestTriggerJob(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewPipelineHandler(jobs, discard())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/archive/run", nil)
	req.SetPathValue("name", "archive")
	rec := httptest.NewRecorder()
	h.TriggerJob(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"archive"}, jobs.ran)

	req = httptest.NewRequest(http.MethodPost, "/api/jobs/nope/run", nil)
	req.SetPathValue("name", "nope")
	rec = httptest.NewRecorder()
	h.TriggerJob(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeAudit struct {
	event string
	opts  domain.ListOpts
}

func (f *fakeAudit) Log(context.Context, string, map[string]any) error { return nil }

func (f *fakeAudit) List(_ context.Context, event string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	f.event, f.opts = event, opts
	if event == "broken" {
		return nil, errors.New("db down")
	}
	return nil, nil
}

func TestAuditList(t *testing.T) {
	store := &fakeAudit{}
	h := NewAuditHandler(store, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/audit?event=kill_switch&limit=5&since=2026-03-01T00:00:00Z&until=bogus", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	assert.Equal(t, "kill_switch", store.event)
	assert.Equal(t, 5, store.opts.Limit)
	require.NotNil(t, store.opts.Since)
	assert.True(t, store.opts.Since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, store.opts.Until)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/audit?event=broken", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

type streamBus struct {
	msgs  []domain.StreamMessage
	after string
	count int
}

func (b *streamBus) Publish(context.Context, string, []byte) error { return nil }

func (b *streamBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *streamBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *streamBus) StreamRead(_ context.Context, _ string, after string, count int) ([]domain.StreamMessage, error) {
	b.after, b.count = after, count
	return b.msgs, nil
}

func TestSignalFeedLive(t *testing.T) {
	bus := &streamBus{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"ticker":"BTCUSD","outcome":"opened"}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
		{ID: "3-0", Payload: []byte(`{"ticker":"ETHUSD","outcome":"dropped"}`)},
	}}
	h := NewSignalFeedHandler(bus, discard())

	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/api/signals/live?count=9999", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", bus.after)
	assert.Equal(t, 500, bus.count)

	var page feedPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "3-0", page.Cursor)
	assert.JSONEq(t, `{"ticker":"ETHUSD","outcome":"dropped"}`, string(page.Entries[1].Signal))

	bus.msgs = nil
	rec = httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/api/signals/live?after=3-0", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Entries)
	assert.Equal(t, "3-0", page.Cursor)
}

type fakeBlobs struct {
	prefix string
	files  map[string]string
}

func (f *fakeBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	f.prefix = prefix
	return nil, nil
}

func (f *fakeBlobs) Open(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestArchiveHandler(t *testing.T) {
	blobs := &fakeBlobs{files: map[string]string{
		"archive/positions/2026/03/01/batch-1.jsonl": "{\"id\":\"p1\"}\n",
	}}
	h := NewArchiveHandler(blobs, discard())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/archive?kind=trade_logs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "archive/trade_logs/", blobs.prefix)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/archive?kind=orders", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Object(rec, httptest.NewRequest(http.MethodGet, "/api/archive/object?path=archive/positions/2026/03/01/batch-1.jsonl", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "batch-1.jsonl")
	assert.Equal(t, "{\"id\":\"p1\"}\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Object(rec, httptest.NewRequest(http.MethodGet, "/api/archive/object?path=archive/../secrets", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Object(rec, httptest.NewRequest(http.MethodGet, "/api/archive/object?path=archive/positions/missing.jsonl", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
