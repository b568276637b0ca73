package linker

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightdesk/crm-backend/internal/models"
)

// CRMDirectory is a read-only view over the CRM's client and deal tables.
// It matches on the contact email recorded against each record.
type CRMDirectory struct {
	pool *pgxpool.Pool
}

func NewCRMDirectory(pool *pgxpool.Pool) *CRMDirectory {
	return &CRMDirectory{pool: pool}
}

func (d *CRMDirectory) FindByAddresses(ctx context.Context, addresses []string) ([]models.EntityLink, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	lowered := make([]string, 0, len(addresses))
	for _, a := range addresses {
		lowered = append(lowered, strings.ToLower(a))
	}

	rows, err := d.pool.Query(ctx, `
		SELECT 'client', id::text FROM clients WHERE LOWER(contact_email) = ANY($1)
		UNION ALL
		SELECT 'deal', id::text FROM deals WHERE LOWER(contact_email) = ANY($1)`,
		lowered)
	if err != nil {
		return nil, fmt.Errorf("failed to query CRM directory: %w", err)
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
		return nil, fmt.Errorf("failed to read CRM directory rows: %w", err)
	}

	return links, nil
}
