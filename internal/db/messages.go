package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/freightdesk/crm-backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `
	id,
	account_id,
	message_id,
	uid,
	direction,
	status,
	from_addrs,
	to_addrs,
	cc_addrs,
	bcc_addrs,
	subject,
	body_text,
	body_html,
	in_reply_to,
	refs,
	thread_id,
	sent_at,
	created_at`

func scanMessage(row pgx.Row) (*models.MailMessage, error) {
	var msg models.MailMessage
	err := row.Scan(
		&msg.ID,
		&msg.AccountID,
		&msg.MessageID,
		&msg.UID,
		&msg.Direction,
		&msg.Status,
		&msg.From,
		&msg.To,
		&msg.Cc,
		&msg.Bcc,
		&msg.Subject,
		&msg.BodyText,
		&msg.BodyHTML,
		&msg.InReplyTo,
		&msg.References,
		&msg.ThreadID,
		&msg.SentAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// InsertMessage persists a message if its Message-ID is not stored yet.
// Returns false without error when a message with the same Message-ID already
// exists, which makes re-ingestion of overlapping fetch ranges idempotent.
// Attachment rows are written only for newly inserted messages.
func InsertMessage(ctx context.Context, pool *pgxpool.Pool, msg *models.MailMessage) (bool, error) {
	err := pool.QueryRow(ctx, `
		INSERT INTO mail_messages (
			account_id,
			message_id,
			uid,
			direction,
			status,
			from_addrs,
			to_addrs,
			cc_addrs,
			bcc_addrs,
			subject,
			body_text,
			body_html,
			in_reply_to,
			refs,
			thread_id,
			sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id
	`,
		msg.AccountID,
		msg.MessageID,
		msg.UID,
		msg.Direction,
		msg.Status,
		msg.From,
		msg.To,
		msg.Cc,
		msg.Bcc,
		msg.Subject,
		msg.BodyText,
		msg.BodyHTML,
		msg.InReplyTo,
		msg.References,
		msg.ThreadID,
		msg.SentAt,
	).Scan(&msg.ID)

	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate Message-ID: already stored, treated as success.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}

	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		att.MessageID = msg.ID
		if err := insertAttachment(ctx, pool, att); err != nil {
			return true, err
		}
	}

	return true, nil
}

func insertAttachment(ctx context.Context, pool *pgxpool.Pool, att *models.Attachment) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO mail_attachments (message_id, filename, storage_path, mime_type, size_bytes, content_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, att.MessageID, att.Filename, att.StoragePath, att.MimeType, att.SizeBytes, att.ContentID).Scan(&att.ID)

	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}

	return nil
}

// GetMessageByMessageID returns a message by its provider Message-ID header.
func GetMessageByMessageID(ctx context.Context, pool *pgxpool.Pool, messageID string) (*models.MailMessage, error) {
	msg, err := scanMessage(pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM mail_messages
		WHERE message_id = $1
	`, messageID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	msg.Attachments, err = getAttachments(ctx, pool, msg.ID)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// GetMessage returns a message by its internal id.
func GetMessage(ctx context.Context, pool *pgxpool.Pool, id string) (*models.MailMessage, error) {
	msg, err := scanMessage(pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM mail_messages
		WHERE id = $1
	`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	msg.Attachments, err = getAttachments(ctx, pool, msg.ID)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// ListMessagesForThread returns all messages of a thread, oldest first.
func ListMessagesForThread(ctx context.Context, pool *pgxpool.Pool, accountID, threadID string) ([]*models.MailMessage, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM mail_messages
		WHERE account_id = $1 AND thread_id = $2
		ORDER BY sent_at
	`, accountID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListMessagesForAccount returns a page of an account's messages, newest first.
func ListMessagesForAccount(ctx context.Context, pool *pgxpool.Pool, accountID string, limit, offset int) ([]*models.MailMessage, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM mail_messages
		WHERE account_id = $1 AND status != 'deleted'
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]*models.MailMessage, error) {
	var messages []*models.MailMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// UpdateMessageStatus transitions the message lifecycle state.
func UpdateMessageStatus(ctx context.Context, pool *pgxpool.Pool, id string, status models.MessageStatus) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mail_messages SET status = $2 WHERE id = $1
	`, id, status)

	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// DeleteMessage removes the message row; attachments and links cascade.
func DeleteMessage(ctx context.Context, pool *pgxpool.Pool, id string) error {
	tag, err := pool.Exec(ctx, `DELETE FROM mail_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func getAttachments(ctx context.Context, pool *pgxpool.Pool, messageID string) ([]models.Attachment, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, message_id, filename, storage_path, mime_type, size_bytes, content_id
		FROM mail_attachments
		WHERE message_id = $1
		ORDER BY filename
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.MessageID,
			&att.Filename,
			&att.StoragePath,
			&att.MimeType,
			&att.SizeBytes,
			&att.ContentID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}
