package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalguard/internal/cache/redis"
	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/server/handler"
	"github.com/alanyoungcy/signalguard/internal/service"
)

type acceptAll struct{ n int }

func (a *acceptAll) HandleSignal(context.Context, domain.Signal) (service.SignalResult, error) {
	a.n++
	return service.SignalResult{Success: true, Outcome: "price_update"}, nil
}

type noLog struct{}

func (noLog) List(context.Context, domain.ListOpts) ([]domain.SignalRecord, error) { return nil, nil }

func newTestRouter(t *testing.T, perMinute int) (http.Handler, *acceptAll) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	rc, err := redis.New(context.Background(), redis.ClientConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	sigs := &acceptAll{}
	h := Handlers{
		Health:  handler.NewHealthHandler(map[string]handler.HealthCheck{"redis": rc.Ping}, logger),
		Status:  handler.NewStatusHandler("full", time.Now(), nil),
		Webhook: handler.NewWebhookHandler(sigs, noLog{}, "", logger),
	}
	router := NewRouter(Config{
		APIKey:           "k3y",
		CORSOrigins:      []string{"*"},
		Limiter:          redis.NewRateLimiter(rc),
		WebhookPerMinute: perMinute,
	}, h, nil, logger)
	return router, sigs
}

func do(router http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5555"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterAuth(t *testing.T) {
	router, _ := newTestRouter(t, 100)

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/status", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/status", "", map[string]string{"X-API-Key": "k3y"}).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer k3y"}).Code)

	// Public paths.
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/webhook", `{"ticker":"BTCUSD","price":1}`, nil).Code)

	metrics := do(router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")
}

func TestRouterOptionalRoutes(t *testing.T) {
	router, _ := newTestRouter(t, 100)
	key := map[string]string{"X-API-Key": "k3y"}

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/archive", "", key).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/api/jobs/archive/run", "", key).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(router, http.MethodGet, "/api/webhook", "", nil).Code)
}

func TestRouterWebhookRateLimit(t *testing.T) {
	router, sigs := newTestRouter(t, 2)
	body := `{"ticker":"BTCUSD","price":1}`

	require.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/webhook", body, nil).Code)
	require.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/webhook", body, nil).Code)

	rec := do(router, http.MethodPost, "/api/webhook", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, 2, sigs.n)
}

func TestRouterCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, 100)
	rec := do(router, http.MethodOptions, "/api/positions", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}
