package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// ArchiveHandler lists and serves cold-storage batches.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, logger: logHandler(logger, "archive")}
}

// List returns archived objects of one kind.
// GET /api/archive?kind=positions|trade_logs
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	switch kind {
	case "":
	case "positions", "trade_logs":
		kind += "/"
	default:
		writeError(w, http.StatusBadRequest, "kind must be positions or trade_logs")
		return
	}
	objs, err := h.reader.List(r.Context(), "archive/"+kind)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list archive", err)
		return
	}
	if objs == nil {
		objs = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, objs)
}

// Object streams one archived JSONL batch.
// GET /api/archive/object?path=archive/positions/...
func (h *ArchiveHandler) Object(w http.ResponseWriter, r *http.Request) {
	key := path.Clean(strings.TrimSpace(r.URL.Query().Get("path")))
	if !strings.HasPrefix(key, "archive/") {
		writeError(w, http.StatusBadRequest, "path must be under archive/")
		return
	}
	body, err := h.reader.Open(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to open archive object", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive download interrupted",
			slog.String("path", key),
			slog.String("error", err.Error()),
		)
	}
}
