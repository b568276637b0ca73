package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freightdesk/crm-backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAccountNotFound is returned when a requested account cannot be found.
var ErrAccountNotFound = errors.New("mail account not found")

// ErrAddressTaken is returned when creating an account with a mailbox
// address that is already configured.
var ErrAddressTaken = errors.New("mailbox address already configured")

const accountColumns = `
	id,
	name,
	address,
	provider,
	imap_host, imap_port, imap_tls,
	smtp_host, smtp_port, smtp_tls,
	owner_user_id,
	shared_with,
	sync_enabled,
	status,
	last_sync_watermark,
	last_sync_at,
	last_error,
	created_at,
	updated_at`

func scanAccount(row pgx.Row) (*models.MailAccount, error) {
	var account models.MailAccount
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Address,
		&account.Provider,
		&account.IMAPServer.Host, &account.IMAPServer.Port, &account.IMAPServer.UseTLS,
		&account.SMTPServer.Host, &account.SMTPServer.Port, &account.SMTPServer.UseTLS,
		&account.OwnerUserID,
		&account.SharedWith,
		&account.SyncEnabled,
		&account.Status,
		&account.LastSyncWatermark,
		&account.LastSyncAt,
		&account.LastError,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateAccount inserts a new mail account together with its credentials.
// The mailbox address is globally unique; a duplicate returns ErrAddressTaken.
func CreateAccount(ctx context.Context, pool *pgxpool.Pool, account *models.MailAccount, creds *models.AccountCredentials) error {
	account.ApplyProviderDefaults()

	err := pool.QueryRow(ctx, `
		INSERT INTO mail_accounts (
			name,
			address,
			provider,
			imap_host, imap_port, imap_tls,
			smtp_host, smtp_port, smtp_tls,
			owner_user_id,
			shared_with,
			sync_enabled,
			status,
			username,
			encrypted_password,
			encrypted_access_token,
			encrypted_refresh_token,
			token_expiry
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`,
		account.Name,
		account.Address,
		account.Provider,
		account.IMAPServer.Host, account.IMAPServer.Port, account.IMAPServer.UseTLS,
		account.SMTPServer.Host, account.SMTPServer.Port, account.SMTPServer.UseTLS,
		account.OwnerUserID,
		account.SharedWith,
		account.SyncEnabled,
		account.Status,
		creds.Username,
		creds.EncryptedPassword,
		creds.EncryptedAccessToken,
		creds.EncryptedRefreshToken,
		creds.TokenExpiry,
	).Scan(&account.ID)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAddressTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	creds.AccountID = account.ID
	return nil
}

// GetAccount returns the account by id. Credentials are not included; use
// GetAccountCredentials for the access-gated secret sub-resource.
func GetAccount(ctx context.Context, pool *pgxpool.Pool, accountID string) (*models.MailAccount, error) {
	account, err := scanAccount(pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM mail_accounts
		WHERE id = $1
	`, accountID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// ListSyncableAccounts returns all accounts eligible for the scheduled sync
// cycle: sync enabled and not deactivated. Errored accounts stay in the
// rotation so transient failures retry on the next cycle and auth failures
// recover as soon as new credentials are saved.
func ListSyncableAccounts(ctx context.Context, pool *pgxpool.Pool) ([]*models.MailAccount, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM mail_accounts
		WHERE status != 'inactive' AND sync_enabled = TRUE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list syncable accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.MailAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// GetAccountCredentials returns the secret sub-resource of an account.
func GetAccountCredentials(ctx context.Context, pool *pgxpool.Pool, accountID string) (*models.AccountCredentials, error) {
	var creds models.AccountCredentials

	err := pool.QueryRow(ctx, `
		SELECT
			id,
			username,
			encrypted_password,
			encrypted_access_token,
			encrypted_refresh_token,
			token_expiry
		FROM mail_accounts
		WHERE id = $1
	`, accountID).Scan(
		&creds.AccountID,
		&creds.Username,
		&creds.EncryptedPassword,
		&creds.EncryptedAccessToken,
		&creds.EncryptedRefreshToken,
		&creds.TokenExpiry,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account credentials: %w", err)
	}

	return &creds, nil
}

// UpdateAccountTokens persists a refreshed OAuth token pair.
func UpdateAccountTokens(ctx context.Context, pool *pgxpool.Pool, accountID string, encryptedAccess, encryptedRefresh []byte, expiry time.Time) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mail_accounts
		SET encrypted_access_token = $2,
			encrypted_refresh_token = COALESCE($3, encrypted_refresh_token),
			token_expiry = $4,
			updated_at = NOW()
		WHERE id = $1
	`, accountID, encryptedAccess, encryptedRefresh, expiry)

	if err != nil {
		return fmt.Errorf("failed to update account tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// AdvanceAccountSyncState records a successful sync cycle: the watermark moves
// forward (never backward), the last error is cleared and the account is
// marked healthy.
func AdvanceAccountSyncState(ctx context.Context, pool *pgxpool.Pool, accountID string, watermark uint32, syncedAt time.Time) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mail_accounts
		SET last_sync_watermark = GREATEST(last_sync_watermark, $2),
			last_sync_at = $3,
			last_error = NULL,
			status = 'active',
			updated_at = NOW()
		WHERE id = $1
	`, accountID, int64(watermark), syncedAt)

	if err != nil {
		return fmt.Errorf("failed to advance sync state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// RecordAccountSyncError marks the account unhealthy with the given error.
// Sync stays enabled so the account recovers on its own once the cause is
// fixed.
func RecordAccountSyncError(ctx context.Context, pool *pgxpool.Pool, accountID, message string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mail_accounts
		SET last_error = $2,
			status = 'error',
			updated_at = NOW()
		WHERE id = $1
	`, accountID, message)

	if err != nil {
		return fmt.Errorf("failed to record sync error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// SetAccountSyncEnabled toggles scheduled syncing for the account.
func SetAccountSyncEnabled(ctx context.Context, pool *pgxpool.Pool, accountID string, enabled bool) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mail_accounts
		SET sync_enabled = $2, updated_at = NOW()
		WHERE id = $1
	`, accountID, enabled)

	if err != nil {
		return fmt.Errorf("failed to update sync_enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// DeleteAccount removes the account. Messages, attachments and entity links
// cascade at the schema level.
func DeleteAccount(ctx context.Context, pool *pgxpool.Pool, accountID string) error {
	tag, err := pool.Exec(ctx, `DELETE FROM mail_accounts WHERE id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
