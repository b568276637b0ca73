package imap

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/freightdesk/crm-backend/internal/models"
)

// ParseMessage converts a raw fetched message into a MailMessage. Attachments
// and named inline parts are written to attachmentsDir as a side effect.
//
// Direction, status ownership and account binding are left to the caller;
// the parser only knows what the wire carried.
func ParseMessage(raw *imap.Message, section *imap.BodySectionName, attachmentsDir string) (*models.MailMessage, error) {
	body := raw.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("server returned no body section")
	}

	env, err := enmime.ReadEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message source: %w", err)
	}

	messageID := cleanMessageID(env.GetHeader("Message-Id"))
	if messageID == "" {
		return nil, fmt.Errorf("message has no Message-Id header")
	}

	uid := raw.Uid
	inReplyTo := cleanMessageID(env.GetHeader("In-Reply-To"))
	references := parseReferences(env.GetHeader("References"))

	msg := &models.MailMessage{
		MessageID:  messageID,
		UID:        &uid,
		Direction:  models.DirectionInbound,
		Status:     models.MessageStatusUnread,
		From:       addressList(env, "From"),
		To:         addressList(env, "To"),
		Cc:         addressList(env, "Cc"),
		Subject:    env.GetHeader("Subject"),
		BodyText:   env.Text,
		BodyHTML:   env.HTML,
		InReplyTo:  inReplyTo,
		References: references,
		ThreadID:   ResolveThreadID(references, inReplyTo, messageID),
		SentAt:     sentAt(env, raw),
	}

	for _, flag := range raw.Flags {
		if flag == imap.SeenFlag {
			msg.Status = models.MessageStatusRead
		}
	}

	parts := append([]*enmime.Part{}, env.Attachments...)
	for _, part := range env.Inlines {
		if part.FileName != "" {
			parts = append(parts, part)
		}
	}
	for _, part := range parts {
		att, err := writeAttachment(part, uid, attachmentsDir)
		if err != nil {
			return nil, err
		}
		msg.Attachments = append(msg.Attachments, *att)
	}

	return msg, nil
}

func writeAttachment(part *enmime.Part, uid uint32, attachmentsDir string) (*models.Attachment, error) {
	if err := os.MkdirAll(attachmentsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attachments directory: %w", err)
	}

	filename := sanitizeFilename(part.FileName)
	path := filepath.Join(attachmentsDir, fmt.Sprintf("%d-%s", uid, filename))
	if err := os.WriteFile(path, part.Content, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write attachment %s: %w", filename, err)
	}

	return &models.Attachment{
		Filename:    part.FileName,
		StoragePath: path,
		MimeType:    part.ContentType,
		SizeBytes:   int64(len(part.Content)),
		ContentID:   part.ContentID,
	}, nil
}

// sanitizeFilename strips anything that could escape the attachment
// directory or confuse the filesystem. Empty names become "attachment".
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "attachment"
	}
	return out
}

func addressList(env *enmime.Envelope, header string) []models.Address {
	parsed, err := env.AddressList(header)
	if err != nil {
		return nil
	}
	return toAddresses(parsed)
}

func toAddresses(parsed []*mail.Address) []models.Address {
	addrs := make([]models.Address, 0, len(parsed))
	for _, a := range parsed {
		addrs = append(addrs, models.Address{Name: a.Name, Address: strings.ToLower(a.Address)})
	}
	return addrs
}

func sentAt(env *enmime.Envelope, raw *imap.Message) (t time.Time) {
	if d := env.GetHeader("Date"); d != "" {
		if parsed, err := mail.ParseDate(d); err == nil {
			return parsed
		}
	}
	return raw.InternalDate
}

// cleanMessageID strips the angle brackets RFC 5322 wraps identifiers in,
// so stored ids compare equal regardless of how a client quoted them.
func cleanMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

// parseReferences splits a References header into individual message ids,
// oldest first.
func parseReferences(header string) []string {
	fields := strings.Fields(header)
	var refs []string
	for _, f := range fields {
		if id := cleanMessageID(f); id != "" {
			refs = append(refs, id)
		}
	}
	return refs
}
