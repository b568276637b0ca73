package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightdesk/crm-backend/internal/crypto"
	"github.com/freightdesk/crm-backend/internal/db"
	"github.com/freightdesk/crm-backend/internal/oauth"
)

// TokenExchanger is the part of the OAuth manager the handler needs.
type TokenExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.TokenPair, error)
}

// OAuthHandler drives the consent flow that (re-)authorizes an OAuth mail
// account. The connect endpoint hands out a provider URL with an opaque
// state token; the callback trades the returned code for tokens and stores
// them encrypted on the account.
type OAuthHandler struct {
	pool      *pgxpool.Pool
	manager   TokenExchanger
	encryptor *crypto.Encryptor

	mu     sync.Mutex
	states map[string]pendingAuth
}

type pendingAuth struct {
	userID    string
	accountID string
}

// NewOAuthHandler creates a new OAuthHandler instance.
func NewOAuthHandler(pool *pgxpool.Pool, manager TokenExchanger, encryptor *crypto.Encryptor) *OAuthHandler {
	return &OAuthHandler{
		pool:      pool,
		manager:   manager,
		encryptor: encryptor,
		states:    make(map[string]pendingAuth),
	}
}

// Connect handles GET /api/v1/oauth/connect?account_id=...
// It returns the provider consent URL for the given account.
func (h *OAuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	if _, err := db.GetAccount(r.Context(), h.pool, accountID); err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		log.Printf("API: Failed to load account %s: %v", accountID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	state := uuid.New().String()
	h.mu.Lock()
	h.states[state] = pendingAuth{userID: userID, accountID: accountID}
	h.mu.Unlock()

	WriteJSON(w, http.StatusOK, map[string]string{
		"url":   h.manager.AuthURL(state),
		"state": state,
	})
}

// Callback handles GET /api/v1/oauth/callback?code=...&state=...
// The state token correlates the provider redirect back to the account that
// initiated the flow; each state is valid for a single callback.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, "code and state are required", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	pending, ok := h.states[state]
	delete(h.states, state)
	h.mu.Unlock()
	if !ok {
		http.Error(w, "Unknown or expired state", http.StatusBadRequest)
		return
	}

	pair, err := h.manager.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("API: OAuth exchange failed for account %s: %v", pending.accountID, err)
		var exchangeErr *oauth.ExchangeError
		if errors.As(err, &exchangeErr) {
			http.Error(w, "Authorization code rejected", http.StatusBadRequest)
			return
		}
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}

	if err := h.storeTokens(r.Context(), pending.accountID, pair); err != nil {
		log.Printf("API: Failed to store tokens for account %s: %v", pending.accountID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":     "connected",
		"account_id": pending.accountID,
		"user_id":    pending.userID,
	})
}

func (h *OAuthHandler) storeTokens(ctx context.Context, accountID string, pair *oauth.TokenPair) error {
	encryptedAccess, err := h.encryptor.Encrypt(pair.AccessToken)
	if err != nil {
		return err
	}

	var encryptedRefresh []byte
	if pair.RefreshToken != "" {
		encryptedRefresh, err = h.encryptor.Encrypt(pair.RefreshToken)
		if err != nil {
			return err
		}
	}

	return db.UpdateAccountTokens(ctx, h.pool, accountID, encryptedAccess, encryptedRefresh, pair.Expiry)
}
