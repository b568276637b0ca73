package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	ws "github.com/freightdesk/crm-backend/internal/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint. Connected clients
// receive the sync events (new_message, account_synced, sync_failed) for
// the accounts they own or share.
type WebSocketHandler struct {
	hub *ws.Hub
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// For now, allow all origins. This server is expected to be used
		// behind a reverse proxy in a trusted environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with
// the Hub. Identity comes from the user_id query parameter since browsers
// cannot set custom headers on WebSocket connections.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: failed to upgrade connection for user %s: %v", userID, err)
		return
	}

	client := h.hub.Register(userID, conn)
	if client == nil {
		log.Printf("WebSocketHandler: Connection rejected for user %s (max connections exceeded)", userID)
		return
	}

	go h.readLoop(userID, client)
}

// readLoop reads from the WebSocket until the connection closes, then
// unregisters the client. Inbound frames are not used for anything; the
// read loop only detects disconnects.
func (h *WebSocketHandler) readLoop(userID string, client *ws.Client) {
	conn := client.Conn()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(userID, client)
}
