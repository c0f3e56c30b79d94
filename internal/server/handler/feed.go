package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// QuoteBoard is the in-memory board of latest prices.
type QuoteBoard interface {
	All() []domain.PriceQuote
	Get(symbol string) (domain.PriceQuote, bool)
}

// ConnectionLister reads the price source health rows.
type ConnectionLister interface {
	ListConnections(ctx context.Context) ([]domain.ConnectionStatus, error)
}

// StreamLister reports the symbols with a live trade stream.
type StreamLister interface {
	Streaming() []string
}

// FeedHandler serves the price board and the connection indicator.
type FeedHandler struct {
	board       QuoteBoard
	connections ConnectionLister
	streams     StreamLister // nil when streaming is off
	staleAfter  time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewFeedHandler creates a FeedHandler. A source not updated within
// staleAfter is reported disconnected.
func NewFeedHandler(board QuoteBoard, connections ConnectionLister, streams StreamLister, staleAfter time.Duration, logger *slog.Logger) *FeedHandler {
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}
	return &FeedHandler{
		board:       board,
		connections: connections,
		streams:     streams,
		staleAfter:  staleAfter,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logHandler(logger, "feed"),
	}
}

// Prices returns the latest price per symbol with its direction color.
// GET /api/prices?symbols=BTCUSD,ETHUSD
func (h *FeedHandler) Prices(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("symbols"))
	if raw == "" {
		writeJSON(w, http.StatusOK, h.board.All())
		return
	}
	out := []domain.PriceQuote{}
	for _, s := range strings.Split(raw, ",") {
		if q, ok := h.board.Get(strings.ToUpper(strings.TrimSpace(s))); ok {
			out = append(out, q)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type feedStatusResponse struct {
	Status    string                    `json:"status"`
	Source    string                    `json:"source"`
	LatencyMS int64                     `json:"latency_ms"`
	UpdatedAt *time.Time                `json:"updated_at"`
	Sources   []domain.ConnectionStatus `json:"sources"`
	Streaming []string                  `json:"streaming"`
}

// Status reports the connection indicator: connected when any source
// reported connected within the stale window; the freshest such source is
// the headline.
// GET /api/feed/status
func (h *FeedHandler) Status(w http.ResponseWriter, r *http.Request) {
	conns, err := h.connections.ListConnections(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read feed status", err)
		return
	}
	if conns == nil {
		conns = []domain.ConnectionStatus{}
	}

	resp := feedStatusResponse{Status: "disconnected", Sources: conns, Streaming: []string{}}
	if h.streams != nil {
		if s := h.streams.Streaming(); s != nil {
			resp.Streaming = s
		}
	}

	now := h.now()
	var best *domain.ConnectionStatus
	for i := range conns {
		c := &conns[i]
		if now.Sub(c.UpdatedAt) > h.staleAfter {
			c.Status = "disconnected"
			continue
		}
		if c.Status == "connected" && (best == nil || c.UpdatedAt.After(best.UpdatedAt)) {
			best = c
		}
	}
	if best != nil {
		at := best.UpdatedAt
		resp.Status = "connected"
		resp.Source = best.Source
		resp.LatencyMS = best.LatencyMS
		resp.UpdatedAt = &at
	} else if len(conns) > 0 {
		resp.Source = conns[0].Source
		if conns[0].Status == "error" {
			resp.Status = "error"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
