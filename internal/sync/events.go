package sync

import "time"

// Event types pushed to connected clients while mailboxes sync.
const (
	EventNewMessage    = "new_message"
	EventAccountSynced = "account_synced"
	EventSyncFailed    = "sync_failed"
)

// Event is the payload broadcast to an account's owner and shared users.
type Event struct {
	Type      string    `json:"type"`
	AccountID string    `json:"account_id"`
	MessageID string    `json:"message_id,omitempty"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers sync events to the users watching an account.
type Notifier interface {
	Notify(userIDs []string, event Event)
}
