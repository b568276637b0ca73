package imap

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
)

// SessionConfig carries everything needed to open one mailbox session.
// Password-based accounts set Password; OAuth accounts set AccessToken.
type SessionConfig struct {
	Host        string
	Port        int
	UseTLS      bool
	Username    string
	Password    string
	AccessToken string
}

// Connect dials the IMAP server and authenticates. Every protocol command on
// the returned client inherits the same timeout, so a hung server cannot
// stall a sync cycle indefinitely. Callers own the session and must Logout.
func Connect(session SessionConfig, timeout time.Duration) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: timeout}
	addr := fmt.Sprintf("%s:%d", session.Host, session.Port)

	var c *client.Client
	var err error
	if session.UseTLS {
		c, err = client.DialWithDialerTLS(dialer, addr, nil)
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	c.Timeout = timeout

	if err := login(c, session); err != nil {
		_ = c.Logout()
		return nil, err
	}

	return c, nil
}

func login(c *client.Client, session SessionConfig) error {
	if session.AccessToken != "" {
		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: session.Username,
			Token:    session.AccessToken,
			Host:     session.Host,
			Port:     session.Port,
		})
		if err := c.Authenticate(saslClient); err != nil {
			return fmt.Errorf("failed to authenticate with OAuth: %w", err)
		}
		return nil
	}

	if err := c.Login(session.Username, session.Password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}

// TestConnection opens a session, lists folders and closes. It validates
// credentials and connectivity before an account is accepted.
func (f *FetchClient) TestConnection(session SessionConfig) ([]string, error) {
	c, err := Connect(session, f.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout() }()

	mailboxes := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)

	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var folders []string
	for m := range mailboxes {
		folders = append(folders, m.Name)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	return folders, nil
}
