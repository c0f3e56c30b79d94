package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/service"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	List(ctx context.Context, accountID int64, status domain.PositionStatus, opts domain.ListOpts) ([]domain.Position, error)
	Get(ctx context.Context, id string) (service.PositionDetail, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns positions with their risk state.
// GET /api/positions?account_id=1&status=open&limit=50&offset=0
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var accountID int64
	if v := q.Get("account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "account_id must be a positive integer")
			return
		}
		accountID = id
	}

	positions, err := h.positions.List(r.Context(), accountID, domain.PositionStatus(q.Get("status")), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns one position and its partial closes.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}
	p, err := h.positions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to load position", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
