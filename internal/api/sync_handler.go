package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/freightdesk/crm-backend/internal/db"
	"github.com/freightdesk/crm-backend/internal/sync"
)

// AccountSyncer runs an on-demand sync for one account.
type AccountSyncer interface {
	SyncAccount(ctx context.Context, accountID string) error
}

// SyncHandler handles POST /api/v1/accounts/{account_id}/sync: it runs the
// account's sync synchronously and reports success, failure or timeout.
type SyncHandler struct {
	syncer AccountSyncer
}

// NewSyncHandler creates a new SyncHandler instance.
func NewSyncHandler(syncer AccountSyncer) *SyncHandler {
	return &SyncHandler{syncer: syncer}
}

func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, ok := RequireUserID(w, r); !ok {
		return
	}

	// Path: /api/v1/accounts/{account_id}/sync
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/accounts/")
	accountID := strings.TrimSuffix(path, "/sync")
	if accountID == "" || accountID == path {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	err := h.syncer.SyncAccount(r.Context(), accountID)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":     "synced",
			"account_id": accountID,
		})
	case errors.Is(err, sync.ErrSyncTimeout):
		WriteJSON(w, http.StatusGatewayTimeout, map[string]string{
			"status":     "timeout",
			"account_id": accountID,
			"error":      err.Error(),
		})
	case errors.Is(err, db.ErrAccountNotFound):
		http.Error(w, "Account not found", http.StatusNotFound)
	default:
		log.Printf("API: Manual sync failed for account %s: %v", accountID, err)
		WriteJSON(w, http.StatusBadGateway, map[string]string{
			"status":     "failed",
			"account_id": accountID,
			"error":      err.Error(),
		})
	}
}
