package sync

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightdesk/crm-backend/internal/config"
	"github.com/freightdesk/crm-backend/internal/crypto"
	"github.com/freightdesk/crm-backend/internal/db"
	"github.com/freightdesk/crm-backend/internal/imap"
	"github.com/freightdesk/crm-backend/internal/models"
	"github.com/freightdesk/crm-backend/internal/oauth"
	"github.com/freightdesk/crm-backend/internal/smtp"
)

// Fetcher pulls new messages from a mailbox.
type Fetcher interface {
	FetchSince(session imap.SessionConfig, folder string, watermark uint32, attachmentsDir string) (*imap.FetchResult, error)
}

// TokenManager refreshes OAuth access tokens.
type TokenManager interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth.TokenPair, error)
	IsExpired(expiry time.Time) bool
}

// Linker attaches an ingested message to matching CRM entities.
type Linker interface {
	Link(ctx context.Context, messageID string, msg *models.MailMessage) []models.EntityLink
}

// Submitter sends an outgoing message over SMTP.
type Submitter interface {
	Send(session smtp.SessionConfig, msg *smtp.OutgoingMessage) (*smtp.SendResult, error)
}

// Orchestrator runs the sync cycle for mail accounts. One account syncs as a
// unit: credentials are resolved, new messages fetched, persisted, linked,
// and the account's watermark advanced. A failure anywhere marks the account
// unhealthy without rolling back messages already stored.
type Orchestrator struct {
	pool            *pgxpool.Pool
	encryptor       *crypto.Encryptor
	fetcher         Fetcher
	sender          Submitter
	tokens          TokenManager
	linker          Linker
	notifier        Notifier
	attachmentsRoot string
	folder          string
}

func NewOrchestrator(pool *pgxpool.Pool, encryptor *crypto.Encryptor, fetcher Fetcher, sender Submitter, tokens TokenManager, linker Linker, notifier Notifier, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		pool:            pool,
		encryptor:       encryptor,
		fetcher:         fetcher,
		sender:          sender,
		tokens:          tokens,
		linker:          linker,
		notifier:        notifier,
		attachmentsRoot: cfg.AttachmentsRoot,
		folder:          "INBOX",
	}
}

// SyncAll syncs every enabled, healthy-or-errored-but-active account in
// sequence. One failing account does not stop the others.
func (o *Orchestrator) SyncAll(ctx context.Context) {
	accounts, err := db.ListSyncableAccounts(ctx, o.pool)
	if err != nil {
		log.Printf("Warning: failed to list accounts for sync: %v", err)
		return
	}

	for _, account := range accounts {
		if err := o.syncAccount(ctx, account); err != nil {
			log.Printf("Warning: sync failed for account %s: %v", account.ID, err)
		}
	}
}

// SyncOne syncs a single account immediately.
func (o *Orchestrator) SyncOne(ctx context.Context, accountID string) error {
	account, err := db.GetAccount(ctx, o.pool, accountID)
	if err != nil {
		return err
	}
	return o.syncAccount(ctx, account)
}

func (o *Orchestrator) syncAccount(ctx context.Context, account *models.MailAccount) error {
	session, err := o.buildSession(ctx, account)
	if err != nil {
		return o.recordFailure(ctx, account, err)
	}

	attachmentsDir := filepath.Join(o.attachmentsRoot, account.ID)
	result, err := o.fetcher.FetchSince(session, o.folder, account.LastSyncWatermark, attachmentsDir)
	if err != nil {
		return o.recordFailure(ctx, account, err)
	}

	for _, msg := range result.Messages {
		msg.AccountID = account.ID
		inserted, err := db.InsertMessage(ctx, o.pool, msg)
		if err != nil {
			return o.recordFailure(ctx, account, fmt.Errorf("failed to store message %s: %w", msg.MessageID, err))
		}
		if !inserted {
			// Already ingested, usually via another folder or an earlier
			// partial cycle. The watermark still advances past it.
			continue
		}

		msg.Links = o.linker.Link(ctx, msg.ID, msg)

		o.notify(account, Event{
			Type:      EventNewMessage,
			AccountID: account.ID,
			MessageID: msg.ID,
			ThreadID:  msg.ThreadID,
			Subject:   msg.Subject,
			Timestamp: time.Now(),
		})
	}

	// MaxUID is zero when nothing new arrived; the store keeps the old
	// watermark either way and the account is marked healthy.
	if err := db.AdvanceAccountSyncState(ctx, o.pool, account.ID, result.MaxUID, time.Now()); err != nil {
		return o.recordFailure(ctx, account, fmt.Errorf("failed to advance sync state: %w", err))
	}

	o.notify(account, Event{
		Type:      EventAccountSynced,
		AccountID: account.ID,
		Timestamp: time.Now(),
	})

	return nil
}

// sessionAuth is the decrypted credential material for one dial.
type sessionAuth struct {
	username    string
	password    string
	accessToken string
}

// buildSession decrypts the account's credentials into a ready-to-dial
// session, refreshing the OAuth access token first when it is expired or
// about to expire. Rotated tokens are persisted before the session is used.
func (o *Orchestrator) buildSession(ctx context.Context, account *models.MailAccount) (imap.SessionConfig, error) {
	session := imap.SessionConfig{
		Host:   account.IMAPServer.Host,
		Port:   account.IMAPServer.Port,
		UseTLS: account.IMAPServer.UseTLS,
	}

	auth, err := o.resolveAuth(ctx, account)
	if err != nil {
		return session, err
	}

	session.Username = auth.username
	session.Password = auth.password
	session.AccessToken = auth.accessToken
	return session, nil
}

func (o *Orchestrator) resolveAuth(ctx context.Context, account *models.MailAccount) (sessionAuth, error) {
	var auth sessionAuth

	creds, err := db.GetAccountCredentials(ctx, o.pool, account.ID)
	if err != nil {
		return auth, err
	}
	auth.username = creds.Username

	if !account.UsesOAuth() {
		password, err := o.encryptor.Decrypt(creds.EncryptedPassword)
		if err != nil {
			return auth, fmt.Errorf("failed to decrypt password: %w", err)
		}
		auth.password = password
		return auth, nil
	}

	accessToken, err := o.encryptor.Decrypt(creds.EncryptedAccessToken)
	if err != nil {
		return auth, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	var expiry time.Time
	if creds.TokenExpiry != nil {
		expiry = *creds.TokenExpiry
	}

	if o.tokens.IsExpired(expiry) {
		refreshToken, err := o.encryptor.Decrypt(creds.EncryptedRefreshToken)
		if err != nil {
			return auth, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}

		pair, err := o.tokens.Refresh(ctx, refreshToken)
		if err != nil {
			return auth, err
		}

		if err := o.storeTokens(ctx, account.ID, pair); err != nil {
			return auth, err
		}
		accessToken = pair.AccessToken
	}

	auth.accessToken = accessToken
	return auth, nil
}

func (o *Orchestrator) storeTokens(ctx context.Context, accountID string, pair *oauth.TokenPair) error {
	encryptedAccess, err := o.encryptor.Encrypt(pair.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	var encryptedRefresh []byte
	if pair.RefreshToken != "" {
		encryptedRefresh, err = o.encryptor.Encrypt(pair.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	return db.UpdateAccountTokens(ctx, o.pool, accountID, encryptedAccess, encryptedRefresh, pair.Expiry)
}

// recordFailure stores the failure on the account and reports it. Syncing
// stays enabled so the account recovers on its own once the cause clears,
// or once new credentials are saved for auth failures.
func (o *Orchestrator) recordFailure(ctx context.Context, account *models.MailAccount, cause error) error {
	if err := db.RecordAccountSyncError(ctx, o.pool, account.ID, cause.Error()); err != nil {
		log.Printf("Warning: failed to record sync error for account %s: %v", account.ID, err)
	}

	o.notify(account, Event{
		Type:      EventSyncFailed,
		AccountID: account.ID,
		Error:     cause.Error(),
		Timestamp: time.Now(),
	})

	return cause
}

func (o *Orchestrator) notify(account *models.MailAccount, event Event) {
	if o.notifier == nil {
		return
	}
	users := append([]string{account.OwnerUserID}, account.SharedWith...)
	o.notifier.Notify(users, event)
}
