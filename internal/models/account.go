package models

import "time"

// ProviderKind identifies how an account connects and authenticates.
type ProviderKind string

const (
	// ProviderGmail uses OAuth2 tokens managed by the token manager.
	ProviderGmail ProviderKind = "gmail"
	// ProviderYandex uses a static password with well-known endpoints.
	ProviderYandex ProviderKind = "yandex"
	// ProviderCustom uses a static password with explicit endpoints.
	ProviderCustom ProviderKind = "custom"
)

// AccountStatus is the health state of a mail account.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusError    AccountStatus = "error"
)

// Endpoint describes one side of a mail connection (IMAP or SMTP).
type Endpoint struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	UseTLS bool   `json:"use_tls"`
}

// MailAccount is one configured mailbox. Credentials are kept in a separate
// struct and are never populated by the default account reads.
type MailAccount struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	Provider    ProviderKind `json:"provider"`
	IMAPServer  Endpoint     `json:"imap_server"`
	SMTPServer  Endpoint     `json:"smtp_server"`
	OwnerUserID string       `json:"owner_user_id"`
	SharedWith  []string     `json:"shared_with,omitempty"`

	SyncEnabled       bool          `json:"sync_enabled"`
	Status            AccountStatus `json:"status"`
	LastSyncWatermark uint32        `json:"last_sync_watermark"`
	LastSyncAt        *time.Time    `json:"last_sync_at"`
	LastError         *string       `json:"last_error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountCredentials is the access-gated secret sub-resource of a MailAccount.
// Password-based providers fill EncryptedPassword; OAuth providers fill the
// token fields. Encrypted fields hold AES-GCM ciphertext.
type AccountCredentials struct {
	AccountID             string     `json:"account_id"`
	Username              string     `json:"username"`
	EncryptedPassword     []byte     `json:"-"`
	EncryptedAccessToken  []byte     `json:"-"`
	EncryptedRefreshToken []byte     `json:"-"`
	TokenExpiry           *time.Time `json:"token_expiry,omitempty"`
}

// UsesOAuth reports whether the account authenticates with OAuth2 tokens.
func (a *MailAccount) UsesOAuth() bool {
	return a.Provider == ProviderGmail
}

// providerDefaults maps well-known providers to their endpoints.
var providerDefaults = map[ProviderKind]struct{ imap, smtp Endpoint }{
	ProviderGmail: {
		imap: Endpoint{Host: "imap.gmail.com", Port: 993, UseTLS: true},
		smtp: Endpoint{Host: "smtp.gmail.com", Port: 465, UseTLS: true},
	},
	ProviderYandex: {
		imap: Endpoint{Host: "imap.yandex.com", Port: 993, UseTLS: true},
		smtp: Endpoint{Host: "smtp.yandex.com", Port: 465, UseTLS: true},
	},
}

// ApplyProviderDefaults fills in endpoints from provider defaults when they
// were not supplied explicitly. Custom providers must supply both.
func (a *MailAccount) ApplyProviderDefaults() {
	defaults, ok := providerDefaults[a.Provider]
	if !ok {
		return
	}
	if a.IMAPServer.Host == "" {
		a.IMAPServer = defaults.imap
	}
	if a.SMTPServer.Host == "" {
		a.SMTPServer = defaults.smtp
	}
}
