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

func createTestAccount(t *testing.T, pool *pgxpool.Pool, address string) *models.MailAccount {
	t.Helper()

	account := &models.MailAccount{
		Name:        "Ops mailbox",
		Address:     address,
		Provider:    models.ProviderCustom,
		IMAPServer:  models.Endpoint{Host: "imap.example.com", Port: 993, UseTLS: true},
		SMTPServer:  models.Endpoint{Host: "smtp.example.com", Port: 465, UseTLS: true},
		OwnerUserID: "user-1",
		SharedWith:  []string{"user-2", "user-3"},
		SyncEnabled: true,
		Status:      models.AccountStatusActive,
	}
	creds := &models.AccountCredentials{
		Username:          address,
		EncryptedPassword: []byte("ciphertext"),
	}
	require.NoError(t, CreateAccount(context.Background(), pool, account, creds))
	return account
}

func TestAccountLifecycle(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	account := createTestAccount(t, pool, "ops@freightdesk.example")
	require.NotEmpty(t, account.ID)

	t.Run("get", func(t *testing.T) {
		got, err := GetAccount(ctx, pool, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "ops@freightdesk.example", got.Address)
		assert.Equal(t, models.Endpoint{Host: "imap.example.com", Port: 993, UseTLS: true}, got.IMAPServer)
		assert.Equal(t, []string{"user-2", "user-3"}, got.SharedWith)
		assert.True(t, got.SyncEnabled)
		assert.Equal(t, models.AccountStatusActive, got.Status)
		assert.Zero(t, got.LastSyncWatermark)
		assert.Nil(t, got.LastSyncAt)
		assert.Nil(t, got.LastError)
	})

	t.Run("duplicate address", func(t *testing.T) {
		dup := &models.MailAccount{
			Name:        "Second",
			Address:     "ops@freightdesk.example",
			Provider:    models.ProviderCustom,
			IMAPServer:  models.Endpoint{Host: "imap.example.com", Port: 993},
			SMTPServer:  models.Endpoint{Host: "smtp.example.com", Port: 465},
			OwnerUserID: "user-9",
			Status:      models.AccountStatusActive,
		}
		err := CreateAccount(ctx, pool, dup, &models.AccountCredentials{Username: "x"})
		assert.ErrorIs(t, err, ErrAddressTaken)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := GetAccount(ctx, pool, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("credentials sub-resource", func(t *testing.T) {
		creds, err := GetAccountCredentials(ctx, pool, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "ops@freightdesk.example", creds.Username)
		assert.Equal(t, []byte("ciphertext"), creds.EncryptedPassword)
		assert.Nil(t, creds.TokenExpiry)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, DeleteAccount(ctx, pool, account.ID))
		_, err := GetAccount(ctx, pool, account.ID)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestCreateAccountAppliesProviderDefaults(t *testing.T) {
	pool := testutil.NewTestDB(t)

	account := &models.MailAccount{
		Name:        "Gmail box",
		Address:     "dispatch@gmail.com",
		Provider:    models.ProviderGmail,
		OwnerUserID: "user-1",
		Status:      models.AccountStatusActive,
	}
	require.NoError(t, CreateAccount(context.Background(), pool, account, &models.AccountCredentials{
		Username: "dispatch@gmail.com",
	}))

	got, err := GetAccount(context.Background(), pool, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Endpoint{Host: "imap.gmail.com", Port: 993, UseTLS: true}, got.IMAPServer)
	assert.Equal(t, models.Endpoint{Host: "smtp.gmail.com", Port: 465, UseTLS: true}, got.SMTPServer)
}

func TestAdvanceAccountSyncStateIsMonotonic(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	account := createTestAccount(t, pool, "ops@freightdesk.example")

	require.NoError(t, AdvanceAccountSyncState(ctx, pool, account.ID, 10, time.Now()))

	got, err := GetAccount(ctx, pool, account.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), got.LastSyncWatermark)
	assert.NotNil(t, got.LastSyncAt)

	// A lower value must never move the watermark backwards.
	require.NoError(t, AdvanceAccountSyncState(ctx, pool, account.ID, 5, time.Now()))

	got, err = GetAccount(ctx, pool, account.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), got.LastSyncWatermark)
}

func TestRecordAndClearSyncError(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	account := createTestAccount(t, pool, "ops@freightdesk.example")

	require.NoError(t, RecordAccountSyncError(ctx, pool, account.ID, "connection refused"))

	got, err := GetAccount(ctx, pool, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusError, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "connection refused", *got.LastError)
	assert.True(t, got.SyncEnabled)

	// A successful cycle clears the error and reactivates the account.
	require.NoError(t, AdvanceAccountSyncState(ctx, pool, account.ID, 3, time.Now()))

	got, err = GetAccount(ctx, pool, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusActive, got.Status)
	assert.Nil(t, got.LastError)
}

func TestListSyncableAccounts(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	active := createTestAccount(t, pool, "active@freightdesk.example")
	disabled := createTestAccount(t, pool, "disabled@freightdesk.example")
	errored := createTestAccount(t, pool, "errored@freightdesk.example")
	inactive := createTestAccount(t, pool, "inactive@freightdesk.example")

	require.NoError(t, SetAccountSyncEnabled(ctx, pool, disabled.ID, false))
	require.NoError(t, RecordAccountSyncError(ctx, pool, errored.ID, "boom"))
	_, err := pool.Exec(ctx, `UPDATE mail_accounts SET status = 'inactive' WHERE id = $1`, inactive.ID)
	require.NoError(t, err)

	accounts, err := ListSyncableAccounts(ctx, pool)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	var ids []string
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	// Errored accounts stay in the rotation; only deactivated or disabled
	// accounts drop out.
	assert.ElementsMatch(t, []string{active.ID, errored.ID}, ids)
}

func TestUpdateAccountTokens(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	account := &models.MailAccount{
		Name:        "Gmail box",
		Address:     "dispatch@gmail.com",
		Provider:    models.ProviderGmail,
		OwnerUserID: "user-1",
		Status:      models.AccountStatusActive,
	}
	require.NoError(t, CreateAccount(ctx, pool, account, &models.AccountCredentials{
		Username:              "dispatch@gmail.com",
		EncryptedAccessToken:  []byte("old-access"),
		EncryptedRefreshToken: []byte("old-refresh"),
	}))

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, UpdateAccountTokens(ctx, pool, account.ID, []byte("new-access"), []byte("new-refresh"), expiry))

	creds, err := GetAccountCredentials(ctx, pool, account.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-access"), creds.EncryptedAccessToken)
	assert.Equal(t, []byte("new-refresh"), creds.EncryptedRefreshToken)
	require.NotNil(t, creds.TokenExpiry)
	assert.WithinDuration(t, expiry, *creds.TokenExpiry, time.Second)

	// A nil refresh token keeps the stored one; most providers do not
	// rotate it on refresh.
	later := expiry.Add(time.Hour)
	require.NoError(t, UpdateAccountTokens(ctx, pool, account.ID, []byte("newer-access"), nil, later))

	creds, err = GetAccountCredentials(ctx, pool, account.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("newer-access"), creds.EncryptedAccessToken)
	assert.Equal(t, []byte("new-refresh"), creds.EncryptedRefreshToken)
}
