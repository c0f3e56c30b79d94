package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// AuditHandler serves the operator audit trail.
type AuditHandler struct {
	store  domain.AuditStore
	logger *slog.Logger
}

func NewAuditHandler(store domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logHandler(logger, "audit")}
}

// List handles GET /api/audit?event=&limit=&offset=&since=&until=.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context(), r.URL.Query().Get("event"), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list audit log", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
