package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// SignalFeedHandler tails the accepted-signal stream kept in redis. Clients
// poll with the cursor from the previous response.
type SignalFeedHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func NewSignalFeedHandler(bus domain.SignalBus, logger *slog.Logger) *SignalFeedHandler {
	return &SignalFeedHandler{bus: bus, logger: logHandler(logger, "signal_feed")}
}

type feedEntry struct {
	ID     string          `json:"id"`
	Signal json.RawMessage `json:"signal"`
}

type feedPage struct {
	Entries []feedEntry `json:"entries"`
	Cursor  string      `json:"cursor"`
}

// Live handles GET /api/signals/live?after=&count=. Without after it starts
// at the beginning of the retained stream.
func (h *SignalFeedHandler) Live(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := min(queryInt(r, "count", 100), 500)

	msgs, err := h.bus.StreamRead(r.Context(), domain.StreamSignals, after, count)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read signal feed", err)
		return
	}

	page := feedPage{Entries: make([]feedEntry, 0, len(msgs)), Cursor: after}
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		page.Entries = append(page.Entries, feedEntry{ID: m.ID, Signal: m.Payload})
		page.Cursor = m.ID
	}
	writeJSON(w, http.StatusOK, page)
}
