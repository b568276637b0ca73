package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/freightdesk/crm-backend/internal/config"
	"golang.org/x/oauth2"
)

// expirySkew is subtracted from the token expiry so callers refresh slightly
// before the provider would reject the token.
const expirySkew = 2 * time.Minute

// ExchangeError indicates the one-time code exchange failed (invalid or
// expired authorization code). The user has to restart the consent flow.
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("authorization code exchange failed: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// RefreshError indicates the refresh token itself was rejected. This is fatal
// for the account until it is re-authorized; it must not be retried
// automatically, unlike transient connection errors.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// TokenPair is the credential material returned by the provider.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Manager drives the OAuth2 flows for managed-provider accounts.
type Manager struct {
	config *oauth2.Config
}

// NewManager builds a Manager from the application configuration.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config: &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       []string{"https://mail.google.com/"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.OAuthAuthURL,
				TokenURL: cfg.OAuthTokenURL,
			},
		},
	}
}

// AuthURL returns the provider consent URL. The opaque state token is echoed
// back on the callback and correlates it to the initiating user.
func (m *Manager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades a one-time authorization code for a token pair.
func (m *Manager) Exchange(ctx context.Context, code string) (*TokenPair, error) {
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, &ExchangeError{Err: err}
	}

	return &TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// Refresh obtains a fresh access token using the stored refresh token.
// Providers usually keep the refresh token stable; when they rotate it, the
// returned pair carries the new one.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	src := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, &RefreshError{Err: err}
	}

	pair := &TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}

	return pair, nil
}

// IsExpired reports whether a token with the given expiry should be refreshed
// before use. Zero expiry means the token never expires.
func (m *Manager) IsExpired(expiry time.Time) bool {
	if expiry.IsZero() {
		return false
	}
	return time.Now().After(expiry.Add(-expirySkew))
}
