package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/service"
)

// SlippageService defines the slippage tracker reads.
type SlippageService interface {
	Stats(ctx context.Context, ticker string, days int) (service.SlippageStats, error)
	BrokerQuality(ctx context.Context, ticker string) (service.BrokerQuality, error)
	Recent(ctx context.Context, limit int) ([]domain.SlippageRecord, error)
}

// SlippageHandler serves the slippage tracker.
type SlippageHandler struct {
	slippage SlippageService
	logger   *slog.Logger
}

// NewSlippageHandler creates a SlippageHandler.
func NewSlippageHandler(slippage SlippageService, logger *slog.Logger) *SlippageHandler {
	return &SlippageHandler{slippage: slippage, logger: logHandler(logger, "slippage")}
}

// Stats aggregates slippage over the last days (7 by default).
// GET /api/slippage/stats?ticker=BTCUSD&days=7
func (h *SlippageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	st, err := h.slippage.Stats(r.Context(), ticker, queryInt(r, "days", 7))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to aggregate slippage", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Events returns the newest slippage records.
// GET /api/slippage/events?limit=20
func (h *SlippageHandler) Events(w http.ResponseWriter, r *http.Request) {
	recs, err := h.slippage.Recent(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list slippage events", err)
		return
	}
	if recs == nil {
		recs = []domain.SlippageRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// Quality scores execution quality for a ticker.
// GET /api/slippage/quality/{ticker}
func (h *SlippageHandler) Quality(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(pathParam(r, "ticker")))
	q, err := h.slippage.BrokerQuality(r.Context(), ticker)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to score broker quality", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
