package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/service"
)

// PanicService defines the kill switch operations.
type PanicService interface {
	ExecuteKillSwitch(ctx context.Context, accountID int64, reason string) (service.KillSwitchResult, error)
	DisableGlobally(ctx context.Context) (int64, error)
	History(ctx context.Context, limit int) ([]domain.TradeLog, error)
}

// PanicHandler serves the kill switch.
type PanicHandler struct {
	svc    PanicService
	logger *slog.Logger
}

// NewPanicHandler creates a PanicHandler.
func NewPanicHandler(svc PanicService, logger *slog.Logger) *PanicHandler {
	return &PanicHandler{svc: svc, logger: logHandler(logger, "panic")}
}

type panicRequest struct {
	Reason string `json:"reason"`
}

// KillSwitch disables entry for the account and force-closes everything it
// holds. Per-position failures are reported in the body with a 200; only a
// failure to disable entry is an error status.
// POST /api/panic/{account} {"reason":"drawdown"}
func (h *PanicHandler) KillSwitch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req panicRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.WarnContext(r.Context(), "kill switch requested",
		slog.Int64("account_id", id),
		slog.String("reason", req.Reason),
		slog.String("remote_addr", r.RemoteAddr),
	)
	res, err := h.svc.ExecuteKillSwitch(r.Context(), id, req.Reason)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "kill switch failed",
				slog.Int64("account_id", id),
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

// DisableAll turns automated entry off for every account without closing
// anything.
// POST /api/panic/disable-all
func (h *PanicHandler) DisableAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DisableGlobally(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to disable entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "automated entry disabled for all accounts",
		"accounts": n,
	})
}

// History lists recent panic closes.
// GET /api/panic/history?limit=10
func (h *PanicHandler) History(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.History(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to load panic history", err)
		return
	}
	if logs == nil {
		logs = []domain.TradeLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
