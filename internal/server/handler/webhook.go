package handler

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/service"
)

// SignalHandlerService is what the webhook needs from signal intake.
type SignalHandlerService interface {
	HandleSignal(ctx context.Context, sig domain.Signal) (service.SignalResult, error)
}

// SignalLog lists recorded webhook deliveries.
type SignalLog interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.SignalRecord, error)
}

// WebhookHandler receives trading alerts.
type WebhookHandler struct {
	signals SignalHandlerService
	log     SignalLog
	secret  string
	logger  *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. An empty secret disables the
// shared-secret check.
func NewWebhookHandler(signals SignalHandlerService, log SignalLog, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		signals: signals,
		log:     log,
		secret:  secret,
		logger:  logHandler(logger, "webhook"),
	}
}

// flexFloat accepts a JSON number or a numeric string; alert templates often
// quote their placeholders.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	*f = flexFloat(v)
	return nil
}

type webhookRequest struct {
	Symbol         string    `json:"symbol"`
	Ticker         string    `json:"ticker"`
	Price          flexFloat `json:"price"`
	Action         string    `json:"action"`
	Quantity       flexFloat `json:"quantity"`
	IdempotencyKey string    `json:"idempotency_key"`
	Secret         string    `json:"secret"`
}

// Receive accepts one alert. A body without an action is a price update.
// POST /api/webhook
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var req webhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.secret)) != 1 {
		h.logger.WarnContext(r.Context(), "webhook rejected: bad secret", slog.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	ticker := req.Ticker
	if ticker == "" {
		ticker = req.Symbol
	}
	key := req.IdempotencyKey
	if hk := r.Header.Get("Idempotency-Key"); hk != "" {
		key = hk
	}

	res, err := h.signals.HandleSignal(r.Context(), domain.Signal{
		Ticker:         ticker,
		Price:          float64(req.Price),
		Action:         req.Action,
		Quantity:       float64(req.Quantity),
		IdempotencyKey: key,
		Raw:            redactSecret(raw),
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "webhook processing failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
		if res.Message == "" {
			res.Message = err.Error()
		}
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// redactSecret drops the shared secret before the payload is persisted.
func redactSecret(raw []byte) []byte {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	if _, ok := m["secret"]; !ok {
		return raw
	}
	delete(m, "secret")
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return out
}

// ListSignals returns recorded deliveries, newest first.
// GET /api/signals?limit=50&offset=0
func (h *WebhookHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	recs, err := h.log.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list signals", err)
		return
	}
	if recs == nil {
		recs = []domain.SignalRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
