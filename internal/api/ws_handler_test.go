package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/crm-backend/internal/sync"
	ws "github.com/freightdesk/crm-backend/internal/websocket"
)

func TestWebSocketHandlerDeliversSyncEvents(t *testing.T) {
	hub := ws.NewHub(10)
	handler := NewWebSocketHandler(hub)

	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws?user_id=user-1"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// The hub needs a moment to register the client.
	require.Eventually(t, func() bool {
		return hub.ActiveConnections("user-1") == 1
	}, time.Second, 10*time.Millisecond)

	notifier := ws.NewNotifier(hub)
	notifier.Notify([]string{"user-1", "user-2"}, sync.Event{
		Type:      sync.EventNewMessage,
		AccountID: "acc-1",
		MessageID: "msg-1",
		Timestamp: time.Now(),
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var event sync.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, sync.EventNewMessage, event.Type)
	assert.Equal(t, "acc-1", event.AccountID)
	assert.Equal(t, "msg-1", event.MessageID)
}

func TestWebSocketHandlerRequiresIdentity(t *testing.T) {
	hub := ws.NewHub(10)
	handler := NewWebSocketHandler(hub)

	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	_, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestWebSocketHandlerUnregistersOnClose(t *testing.T) {
	hub := ws.NewHub(10)
	handler := NewWebSocketHandler(hub)

	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws?user_id=user-1"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hub.ActiveConnections("user-1") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return hub.ActiveConnections("user-1") == 0
	}, time.Second, 10*time.Millisecond)
}
