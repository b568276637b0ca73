package testutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer is an in-memory IMAP server for exercising the fetch path
// without a real mailbox. The memory backend ships with a default user
// "username"/"password" and an INBOX.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	cleanup  func()
	username string
	password string
}

// NewTestIMAPServer starts a test IMAP server on a random loopback port.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()

	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	addr := listener.Addr().String()

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("IMAP server error: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	cleanup := func() {
		_ = s.Close()
	}

	return &TestIMAPServer{
		Server:   s,
		Address:  addr,
		Backend:  be,
		cleanup:  cleanup,
		username: "username",
		password: "password",
	}
}

// Close shuts down the test IMAP server.
func (s *TestIMAPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Host returns the loopback address the server listens on.
func (s *TestIMAPServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Address)
	return host
}

// Port returns the random port the server listens on.
func (s *TestIMAPServer) Port() int {
	_, portStr, _ := net.SplitHostPort(s.Address)
	port, _ := strconv.Atoi(portStr)
	return port
}

// Connect creates a logged-in IMAP client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	if err := client.Login(s.username, s.password); err != nil {
		_ = client.Logout()
		t.Fatalf("Failed to login: %v", err)
	}

	cleanup := func() {
		_ = client.Logout()
	}

	return client, cleanup
}

// AddMessage appends a plain-text message to the folder and returns its UID.
func (s *TestIMAPServer) AddMessage(t *testing.T, folderName, messageID, subject, from, to string, sentAt time.Time) uint32 {
	t.Helper()

	raw := fmt.Sprintf(`Message-ID: <%s>
Date: %s
From: %s
To: %s
Subject: %s
Content-Type: text/plain; charset=utf-8

Test message body.
`, messageID, sentAt.Format(time.RFC1123Z), from, to, subject)

	return s.AddRawMessage(t, folderName, messageID, raw, imap.SeenFlag)
}

// AddRawMessage appends an arbitrary RFC 822 message and returns its UID.
// Use it when a test needs reply headers, attachments or specific flags.
// messageID must match the Message-ID header, without angle brackets.
func (s *TestIMAPServer) AddRawMessage(t *testing.T, folderName, messageID, raw string, flags ...string) uint32 {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, false); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	err := client.Append(folderName, flags, time.Now(), strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-ID", "<"+messageID+">")
	uids, err := client.UidSearch(criteria)
	if err != nil {
		t.Fatalf("Failed to search for message: %v", err)
	}

	if len(uids) == 0 {
		t.Fatalf("Message not found after append")
	}

	return uids[0]
}
