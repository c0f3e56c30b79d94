package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/signalguard/internal/service"
)

// StatsService defines the methods that the stats handler requires.
type StatsService interface {
	Report(ctx context.Context, accountID int64, period time.Duration) (service.AccountReport, error)
}

// StatsHandler serves account analytics.
type StatsHandler struct {
	stats  StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logHandler(logger, "stats")}
}

// GetStats returns aggregate stats, analytics and the equity curve of the
// last `hours` hours (24 by default).
// GET /api/stats/{account}?hours=24
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hours := queryInt(r, "hours", 24)
	rep, err := h.stats.Report(r.Context(), id, time.Duration(hours)*time.Hour)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to build stats", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
