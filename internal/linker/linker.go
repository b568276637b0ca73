// Package linker attaches ingested messages to CRM records by matching
// participant email addresses against the client and deal directories.
package linker

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightdesk/crm-backend/internal/db"
	"github.com/freightdesk/crm-backend/internal/models"
)

// Directory answers which CRM entities are associated with a set of email
// addresses.
type Directory interface {
	FindByAddresses(ctx context.Context, addresses []string) ([]models.EntityLink, error)
}

// AutoLinker links new messages to matching CRM entities. Linking is a
// best-effort enrichment: a lookup or store failure is logged and swallowed
// so that ingestion never fails because of it.
type AutoLinker struct {
	directory Directory
	pool      *pgxpool.Pool
}

func NewAutoLinker(directory Directory, pool *pgxpool.Pool) *AutoLinker {
	return &AutoLinker{directory: directory, pool: pool}
}

// Link finds CRM entities sharing an email address with the message's
// participants and records the associations. Returns the links that were
// attached.
func (l *AutoLinker) Link(ctx context.Context, messageID string, msg *models.MailMessage) []models.EntityLink {
	addresses := msg.ParticipantAddresses()
	if len(addresses) == 0 {
		return nil
	}

	links, err := l.directory.FindByAddresses(ctx, addresses)
	if err != nil {
		log.Printf("Warning: entity lookup failed for message %s: %v", msg.MessageID, err)
		return nil
	}
	if len(links) == 0 {
		return nil
	}

	if err := db.AddEntityLinks(ctx, l.pool, messageID, links); err != nil {
		log.Printf("Warning: failed to store entity links for message %s: %v", msg.MessageID, err)
		return nil
	}

	return links
}
