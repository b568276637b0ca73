package models

import "time"

// MessageDirection distinguishes ingested mail from mail sent through us.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageStatus is the lifecycle state of a message.
type MessageStatus string

const (
	MessageStatusUnread    MessageStatus = "unread"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusReplied   MessageStatus = "replied"
	MessageStatusForwarded MessageStatus = "forwarded"
	MessageStatusArchived  MessageStatus = "archived"
	MessageStatusDeleted   MessageStatus = "deleted"
)

// Address is a mail address with an optional display name.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// MailMessage is one ingested or sent message. MessageID (the provider
// Message-ID header) is globally unique; UID is the IMAP unique id and is
// nil for outbound messages.
type MailMessage struct {
	ID        string  `json:"id"`
	AccountID string  `json:"account_id"`
	MessageID string  `json:"message_id"`
	UID       *uint32 `json:"uid,omitempty"`

	Direction MessageDirection `json:"direction"`
	Status    MessageStatus    `json:"status"`

	From    []Address `json:"from"`
	To      []Address `json:"to"`
	Cc      []Address `json:"cc,omitempty"`
	Bcc     []Address `json:"bcc,omitempty"`
	Subject string    `json:"subject"`

	BodyText string `json:"body_text,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`

	InReplyTo  string   `json:"in_reply_to,omitempty"`
	References []string `json:"references,omitempty"`
	ThreadID   string   `json:"thread_id"`

	SentAt      time.Time    `json:"sent_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Links       []EntityLink `json:"links,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Attachment is one stored attachment of a message. StoragePath points at
// the file written under the per-account attachments directory.
type Attachment struct {
	ID          string `json:"id"`
	MessageID   string `json:"message_id"`
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentID   string `json:"content_id,omitempty"`
}

// EntityLink connects a message to a CRM record.
type EntityLink struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// ParticipantAddresses returns the plain addresses of from/to/cc, in order,
// without duplicates. Used for entity auto-linking.
func (m *MailMessage) ParticipantAddresses() []string {
	seen := make(map[string]struct{})
	var result []string
	for _, list := range [][]Address{m.From, m.To, m.Cc} {
		for _, addr := range list {
			if addr.Address == "" {
				continue
			}
			if _, ok := seen[addr.Address]; ok {
				continue
			}
			seen[addr.Address] = struct{}{}
			result = append(result, addr.Address)
		}
	}
	return result
}
