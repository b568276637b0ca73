package smtp

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"

	"github.com/freightdesk/crm-backend/internal/config"
	"github.com/freightdesk/crm-backend/internal/models"
)

// SessionConfig carries everything needed for one submission session.
// Password-based accounts set Password; OAuth accounts set AccessToken.
type SessionConfig struct {
	Host        string
	Port        int
	UseTLS      bool
	Username    string
	Password    string
	AccessToken string
}

// OutgoingMessage is a message ready for submission.
type OutgoingMessage struct {
	From        models.Address
	To          []models.Address
	Cc          []models.Address
	Bcc         []models.Address
	Subject     string
	BodyText    string
	BodyHTML    string
	InReplyTo   string
	References  []string
	Attachments []AttachmentFile
}

// AttachmentFile is an attachment to include in an outgoing message.
type AttachmentFile struct {
	Filename string
	MimeType string
	Content  []byte
}

// SendResult reports what the relay accepted.
type SendResult struct {
	// MessageID is the id stamped on the message, without angle brackets.
	MessageID string
	// Recipients is the deduplicated envelope recipient list.
	Recipients []string
}

// Sender submits messages over SMTP. Like the fetch side, every call opens
// its own session and closes it before returning.
type Sender struct {
	ConnectTimeout time.Duration
}

func NewSender(cfg *config.Config) *Sender {
	return &Sender{ConnectTimeout: cfg.ConnectTimeout}
}

// Send composes msg as MIME, submits it and returns the generated message id
// together with the envelope recipients. Bcc recipients receive the message
// but are not written into its headers.
func (s *Sender) Send(session SessionConfig, msg *OutgoingMessage) (*SendResult, error) {
	messageID := generateMessageID(msg.From.Address)

	raw, err := buildMIME(msg, messageID)
	if err != nil {
		return nil, err
	}

	recipients := envelopeRecipients(msg)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}

	c, err := s.connect(session)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Quit() }()

	if err := authenticate(c, session); err != nil {
		return nil, err
	}

	if err := c.SendMail(msg.From.Address, recipients, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to submit message: %w", err)
	}

	return &SendResult{MessageID: messageID, Recipients: recipients}, nil
}

func (s *Sender) connect(session SessionConfig) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: s.ConnectTimeout}
	addr := fmt.Sprintf("%s:%d", session.Host, session.Port)

	if session.UseTLS {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
		}
		return smtp.NewClient(conn), nil
	}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	c := smtp.NewClient(conn)
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: session.Host}); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	return c, nil
}

func authenticate(c *smtp.Client, session SessionConfig) error {
	if ok, _ := c.Extension("AUTH"); !ok {
		return nil
	}

	var saslClient sasl.Client
	if session.AccessToken != "" {
		saslClient = sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: session.Username,
			Token:    session.AccessToken,
			Host:     session.Host,
			Port:     session.Port,
		})
	} else {
		saslClient = sasl.NewPlainClient("", session.Username, session.Password)
	}

	if err := c.Auth(saslClient); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}

func buildMIME(msg *OutgoingMessage, messageID string) ([]byte, error) {
	b := enmime.Builder().
		From(msg.From.Name, msg.From.Address).
		Subject(msg.Subject).
		Header("Message-Id", "<"+messageID+">")

	for _, a := range msg.To {
		b = b.To(a.Name, a.Address)
	}
	for _, a := range msg.Cc {
		b = b.CC(a.Name, a.Address)
	}
	for _, a := range msg.Bcc {
		b = b.BCC(a.Name, a.Address)
	}

	if msg.BodyText != "" {
		b = b.Text([]byte(msg.BodyText))
	}
	if msg.BodyHTML != "" {
		b = b.HTML([]byte(msg.BodyHTML))
	}

	if msg.InReplyTo != "" {
		b = b.Header("In-Reply-To", "<"+msg.InReplyTo+">")
	}
	if len(msg.References) > 0 {
		wrapped := make([]string, 0, len(msg.References))
		for _, ref := range msg.References {
			wrapped = append(wrapped, "<"+ref+">")
		}
		b = b.Header("References", strings.Join(wrapped, " "))
	}

	for _, att := range msg.Attachments {
		b = b.AddAttachment(att.Content, att.MimeType, att.Filename)
	}

	part, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	return buf.Bytes(), nil
}

// envelopeRecipients flattens to/cc/bcc into a deduplicated address list.
func envelopeRecipients(msg *OutgoingMessage) []string {
	seen := make(map[string]bool)
	var recipients []string
	for _, list := range [][]models.Address{msg.To, msg.Cc, msg.Bcc} {
		for _, a := range list {
			key := strings.ToLower(a.Address)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			recipients = append(recipients, a.Address)
		}
	}
	return recipients
}

func generateMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("%s@%s", uuid.New().String(), domain)
}
