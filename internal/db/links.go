package db

import (
	"context"
	"fmt"

	"github.com/freightdesk/crm-backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AddEntityLinks attaches CRM entity links to a message. Links that already
// exist are skipped, so re-adding is a no-op.
func AddEntityLinks(ctx context.Context, pool *pgxpool.Pool, messageID string, links []models.EntityLink) error {
	for _, link := range links {
		_, err := pool.Exec(ctx, `
			INSERT INTO message_entity_links (message_id, entity_type, entity_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (message_id, entity_type, entity_id) DO NOTHING
		`, messageID, link.EntityType, link.EntityID)

		if err != nil {
			return fmt.Errorf("failed to add entity link: %w", err)
		}
	}

	return nil
}

// RemoveEntityLink detaches one entity link. Removing a link that does not
// exist is a no-op.
func RemoveEntityLink(ctx context.Context, pool *pgxpool.Pool, messageID string, link models.EntityLink) error {
	_, err := pool.Exec(ctx, `
		DELETE FROM message_entity_links
		WHERE message_id = $1 AND entity_type = $2 AND entity_id = $3
	`, messageID, link.EntityType, link.EntityID)

	if err != nil {
		return fmt.Errorf("failed to remove entity link: %w", err)
	}

	return nil
}

// GetEntityLinks returns all entity links of a message.
func GetEntityLinks(ctx context.Context, pool *pgxpool.Pool, messageID string) ([]models.EntityLink, error) {
	rows, err := pool.Query(ctx, `
		SELECT entity_type, entity_id
		FROM message_entity_links
		WHERE message_id = $1
		ORDER BY entity_type, entity_id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entity links: %w", err)
	}
	defer rows.Close()

	var links []models.EntityLink
	for rows.Next() {
		var link models.EntityLink
		if err := rows.Scan(&link.EntityType, &link.EntityID); err != nil {
			return nil, fmt.Errorf("failed to scan entity link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity links: %w", err)
	}

	return links, nil
}
