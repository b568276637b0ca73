package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/freightdesk/crm-backend/internal/db"
	"github.com/freightdesk/crm-backend/internal/imap"
	"github.com/freightdesk/crm-backend/internal/models"
	"github.com/freightdesk/crm-backend/internal/smtp"
)

// SendMessage submits an outgoing message through the account's SMTP server
// and stores it so the thread holds both directions. Stored outbound
// messages carry no IMAP UID.
func (o *Orchestrator) SendMessage(ctx context.Context, accountID string, out *smtp.OutgoingMessage) (*models.MailMessage, error) {
	account, err := db.GetAccount(ctx, o.pool, accountID)
	if err != nil {
		return nil, err
	}
	return o.sendForAccount(ctx, account, out)
}

// SendReply composes and sends a reply to a stored message. The original is
// marked replied once the reply is accepted by the relay.
func (o *Orchestrator) SendReply(ctx context.Context, messageID, bodyText, bodyHTML string, replyAll bool) (*models.MailMessage, error) {
	original, err := db.GetMessage(ctx, o.pool, messageID)
	if err != nil {
		return nil, err
	}

	account, err := db.GetAccount(ctx, o.pool, original.AccountID)
	if err != nil {
		return nil, err
	}

	out := smtp.BuildReply(original, models.Address{Name: account.Name, Address: account.Address}, bodyText, bodyHTML, replyAll)

	sent, err := o.sendForAccount(ctx, account, out)
	if err != nil {
		return nil, err
	}

	if err := db.UpdateMessageStatus(ctx, o.pool, original.ID, models.MessageStatusReplied); err != nil {
		log.Printf("Warning: failed to mark message %s replied: %v", original.ID, err)
	}

	return sent, nil
}

func (o *Orchestrator) sendForAccount(ctx context.Context, account *models.MailAccount, out *smtp.OutgoingMessage) (*models.MailMessage, error) {
	auth, err := o.resolveAuth(ctx, account)
	if err != nil {
		return nil, err
	}

	if out.From.Address == "" {
		out.From = models.Address{Name: account.Name, Address: account.Address}
	}

	session := smtp.SessionConfig{
		Host:        account.SMTPServer.Host,
		Port:        account.SMTPServer.Port,
		UseTLS:      account.SMTPServer.UseTLS,
		Username:    auth.username,
		Password:    auth.password,
		AccessToken: auth.accessToken,
	}

	result, err := o.sender.Send(session, out)
	if err != nil {
		return nil, err
	}

	msg := &models.MailMessage{
		AccountID:  account.ID,
		MessageID:  result.MessageID,
		Direction:  models.DirectionOutbound,
		Status:     models.MessageStatusRead,
		From:       []models.Address{out.From},
		To:         out.To,
		Cc:         out.Cc,
		Bcc:        out.Bcc,
		Subject:    out.Subject,
		BodyText:   out.BodyText,
		BodyHTML:   out.BodyHTML,
		InReplyTo:  out.InReplyTo,
		References: out.References,
		ThreadID:   imap.ResolveThreadID(out.References, out.InReplyTo, result.MessageID),
		SentAt:     time.Now(),
	}

	if _, err := db.InsertMessage(ctx, o.pool, msg); err != nil {
		return nil, fmt.Errorf("failed to store sent message %s: %w", msg.MessageID, err)
	}

	msg.Links = o.linker.Link(ctx, msg.ID, msg)

	return msg, nil
}
