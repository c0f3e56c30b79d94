package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/service"
)

// CooldownService defines the cooldown manager operations the API exposes.
type CooldownService interface {
	Activate(ctx context.Context, ticker, reason string, d time.Duration) (domain.Cooldown, error)
	Status(ctx context.Context, ticker string) (service.CooldownStatus, error)
	Deactivate(ctx context.Context, ticker string) (int64, error)
	ListActive(ctx context.Context) ([]service.ActiveCooldown, error)
}

// CooldownHandler serves the cooldown manager.
type CooldownHandler struct {
	cooldowns CooldownService
	logger    *slog.Logger
}

// NewCooldownHandler creates a CooldownHandler.
func NewCooldownHandler(cooldowns CooldownService, logger *slog.Logger) *CooldownHandler {
	return &CooldownHandler{cooldowns: cooldowns, logger: logHandler(logger, "cooldowns")}
}

type cooldownView struct {
	domain.Cooldown
	RemainingMinutes float64 `json:"remaining_minutes"`
}

// ListActive returns every unexpired lock.
// GET /api/cooldowns
func (h *CooldownHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	active, err := h.cooldowns.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list cooldowns", err)
		return
	}
	out := make([]cooldownView, 0, len(active))
	for _, c := range active {
		out = append(out, cooldownView{Cooldown: c.Cooldown, RemainingMinutes: minutes(c.Remaining)})
	}
	writeJSON(w, http.StatusOK, out)
}

type cooldownStatusResponse struct {
	service.CooldownStatus
	RemainingMinutes float64 `json:"remaining_minutes"`
}

// Status reports whether a ticker is locked.
// GET /api/cooldowns/{ticker}
func (h *CooldownHandler) Status(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(pathParam(r, "ticker")))
	st, err := h.cooldowns.Status(r.Context(), ticker)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to check cooldown", err)
		return
	}
	writeJSON(w, http.StatusOK, cooldownStatusResponse{CooldownStatus: st, RemainingMinutes: minutes(st.Remaining)})
}

type activateRequest struct {
	Ticker  string  `json:"ticker"`
	Minutes float64 `json:"minutes"`
	Reason  string  `json:"reason"`
}

// Activate locks a ticker manually; minutes <= 0 uses the default duration.
// POST /api/cooldowns {"ticker":"BTCUSD","minutes":30,"reason":"news"}
func (h *CooldownHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual"
	}
	d := time.Duration(req.Minutes * float64(time.Minute))
	c, err := h.cooldowns.Activate(r.Context(), strings.ToUpper(strings.TrimSpace(req.Ticker)), reason, d)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to activate cooldown", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"message":  "cooldown activated",
		"cooldown": c,
	})
}

// Deactivate lifts every active lock on a ticker.
// DELETE /api/cooldowns/{ticker}
func (h *CooldownHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(pathParam(r, "ticker")))
	n, err := h.cooldowns.Deactivate(r.Context(), ticker)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to lift cooldown", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "cooldown lifted",
		"ticker":      ticker,
		"deactivated": n,
	})
}

func minutes(d time.Duration) float64 {
	return float64(int64(d.Minutes()*10)) / 10
}
