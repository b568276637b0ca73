package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/crm-backend/internal/models"
	"github.com/freightdesk/crm-backend/internal/testutil"
)

func insertLinkedMessage(t *testing.T, pool *pgxpool.Pool) *models.MailMessage {
	t.Helper()

	account := createTestAccount(t, pool, "ops@freightdesk.example")
	msg := newStoredMessage(account.ID, "m1@example.com", 7, time.Now())
	_, err := InsertMessage(context.Background(), pool, msg)
	require.NoError(t, err)
	return msg
}

func TestEntityLinksIdempotent(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	msg := insertLinkedMessage(t, pool)

	links := []models.EntityLink{
		{EntityType: "client", EntityID: "client-1"},
		{EntityType: "deal", EntityID: "deal-1"},
	}
	require.NoError(t, AddEntityLinks(ctx, pool, msg.ID, links))

	// Linking the same entities again is a no-op.
	require.NoError(t, AddEntityLinks(ctx, pool, msg.ID, links))

	got, err := GetEntityLinks(ctx, pool, msg.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, links, got)
}

func TestRemoveEntityLink(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	msg := insertLinkedMessage(t, pool)

	link := models.EntityLink{EntityType: "client", EntityID: "client-1"}
	require.NoError(t, AddEntityLinks(ctx, pool, msg.ID, []models.EntityLink{link}))

	require.NoError(t, RemoveEntityLink(ctx, pool, msg.ID, link))

	got, err := GetEntityLinks(ctx, pool, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Unlinking something that is not linked is a no-op.
	require.NoError(t, RemoveEntityLink(ctx, pool, msg.ID, link))
}

func TestDeleteMessageCascadesLinks(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	msg := insertLinkedMessage(t, pool)

	require.NoError(t, AddEntityLinks(ctx, pool, msg.ID, []models.EntityLink{
		{EntityType: "client", EntityID: "client-1"},
	}))

	require.NoError(t, DeleteMessage(ctx, pool, msg.ID))
	assertNoRows(t, pool, "SELECT COUNT(*) FROM message_entity_links")
}
