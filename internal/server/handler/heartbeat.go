package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalguard/internal/service"
)

// HeartbeatService defines the heartbeat monitor reads.
type HeartbeatService interface {
	Beat(ctx context.Context) error
	Status(ctx context.Context) service.HeartbeatStatus
}

// HeartbeatHandler serves the heartbeat monitor.
type HeartbeatHandler struct {
	hb     HeartbeatService
	logger *slog.Logger
}

// NewHeartbeatHandler creates a HeartbeatHandler.
func NewHeartbeatHandler(hb HeartbeatService, logger *slog.Logger) *HeartbeatHandler {
	return &HeartbeatHandler{hb: hb, logger: logHandler(logger, "heartbeat")}
}

// Status reports the monitor state.
// GET /api/heartbeat
func (h *HeartbeatHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hb.Status(r.Context()))
}

// Ping records a beat immediately and reports the new state.
// POST /api/heartbeat/ping
func (h *HeartbeatHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.hb.Beat(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, "failed to record heartbeat", err)
		return
	}
	writeJSON(w, http.StatusOK, h.hb.Status(r.Context()))
}
