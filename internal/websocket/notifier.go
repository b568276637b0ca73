package websocket

import "github.com/freightdesk/crm-backend/internal/sync"

// Notifier adapts the Hub to the sync engine's event sink.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) Notify(userIDs []string, event sync.Event) {
	n.hub.SendJSON(userIDs, event)
}
