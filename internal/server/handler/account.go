package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// AccountService defines the account reads and toggles the API exposes.
type AccountService interface {
	List(ctx context.Context) ([]domain.Account, error)
	SetAutoEntry(ctx context.Context, id int64, enabled bool) (domain.Account, error)
}

// Rearmer re-enables entry on a disarmed account.
type Rearmer interface {
	Rearm(ctx context.Context, accountID int64) (domain.Account, error)
}

// AccountHandler serves account endpoints.
type AccountHandler struct {
	accounts AccountService
	rearm    Rearmer
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, rearm Rearmer, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, rearm: rearm, logger: logHandler(logger, "accounts")}
}

type accountResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Account domain.Account `json:"account"`
}

// ListAccounts returns every account.
// GET /api/accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := h.accounts.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list accounts", err)
		return
	}
	if accts == nil {
		accts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, accts)
}

// Arm re-arms a disarmed account.
// POST /api/accounts/{id}/arm
func (h *AccountHandler) Arm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := h.rearm.Rearm(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to re-arm account", err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Success: true, Message: "account re-armed", Account: acct})
}

type autoEntryRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetAutoEntry toggles automated entry on an armed account.
// POST /api/accounts/{id}/auto-entry {"enabled": false}
func (h *AccountHandler) SetAutoEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req autoEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	acct, err := h.accounts.SetAutoEntry(r.Context(), id, *req.Enabled)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to toggle auto entry", err)
		return
	}
	msg := "automated entry disabled"
	if acct.AutoEntryEnabled {
		msg = "automated entry enabled"
	}
	writeJSON(w, http.StatusOK, accountResponse{Success: true, Message: msg, Account: acct})
}
