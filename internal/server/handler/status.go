package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// AccountLister lists accounts for the status summary.
type AccountLister interface {
	List(ctx context.Context) ([]domain.Account, error)
}

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	Mode      string
	StartedAt time.Time
	accounts  AccountLister
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string, startedAt time.Time, accounts AccountLister) *StatusHandler {
	return &StatusHandler{Mode: mode, StartedAt: startedAt, accounts: accounts}
}

type accountState struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	AutoEntryEnabled bool              `json:"auto_entry_enabled"`
	EntryState       domain.EntryState `json:"entry_state"`
}

// GetStatus responds with the run mode, uptime and the entry state of every
// account.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.Mode,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	}
	if h.accounts != nil {
		accts, err := h.accounts.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list accounts")
			return
		}
		states := make([]accountState, 0, len(accts))
		for _, a := range accts {
			states = append(states, accountState{
				ID: a.ID, Name: a.Name, AutoEntryEnabled: a.AutoEntryEnabled, EntryState: a.EntryState,
			})
		}
		resp["accounts"] = states
	}
	writeJSON(w, http.StatusOK, resp)
}
