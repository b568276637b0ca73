package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/crm-backend/internal/config"
)

func newTestManager(tokenURL string) *Manager {
	return NewManager(&config.Config{
		OAuthClientID:     "client-id",
		OAuthClientSecret: "client-secret",
		OAuthAuthURL:      "https://auth.example.com/consent",
		OAuthTokenURL:     tokenURL,
		OAuthRedirectURL:  "https://crm.example.com/oauth/callback",
	})
}

func TestAuthURL(t *testing.T) {
	m := newTestManager("https://auth.example.com/token")

	raw := m.AuthURL("state-token-123")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "auth.example.com", parsed.Host)
	query := parsed.Query()
	assert.Equal(t, "state-token-123", query.Get("state"))
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "offline", query.Get("access_type"))
	assert.Equal(t, "force", query.Get("approval_prompt"))
	assert.Contains(t, query.Get("scope"), "mail.google.com")
}

func TestExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "auth-code", r.FormValue("code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "access-1",
			"refresh_token": "refresh-1",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)
	pair, err := m.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "access-1", pair.AccessToken)
	assert.Equal(t, "refresh-1", pair.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), pair.Expiry, time.Minute)
}

func TestExchangeInvalidCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)
	_, err := m.Exchange(context.Background(), "expired-code")

	var exchangeErr *ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
}

func TestRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "refresh-1", r.FormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "access-2",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)
	pair, err := m.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)

	assert.Equal(t, "access-2", pair.AccessToken)
	// Provider did not rotate the refresh token; the stored one stays valid.
	assert.Equal(t, "refresh-1", pair.RefreshToken)
}

func TestRefreshRotation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "access-3",
			"refresh_token": "refresh-2",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)
	pair, err := m.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)

	assert.Equal(t, "refresh-2", pair.RefreshToken)
}

func TestRefreshRevoked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)
	_, err := m.Refresh(context.Background(), "revoked")

	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
}

func TestIsExpired(t *testing.T) {
	m := newTestManager("https://auth.example.com/token")

	assert.False(t, m.IsExpired(time.Time{}))
	assert.False(t, m.IsExpired(time.Now().Add(time.Hour)))
	assert.True(t, m.IsExpired(time.Now().Add(-time.Hour)))
	// Inside the refresh skew window counts as expired.
	assert.True(t, m.IsExpired(time.Now().Add(time.Minute)))
}
