package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string

	AttachmentsRoot string

	SyncInterval      time.Duration
	FirstSyncLimit    int
	PerCycleLimit     int
	ConnectTimeout    time.Duration
	ManualSyncTimeout time.Duration

	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthRedirectURL  string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("CRM_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("CRM_ENCRYPTION_KEY_BASE64"),
		DBHost:              getEnvOrDefault("CRM_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("CRM_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("CRM_DB_USER", "crm"),
		DBPassword:          os.Getenv("CRM_DB_PASSWORD"),
		DBName:              getEnvOrDefault("CRM_DB_NAME", "crm"),
		DBSSLMode:           getEnvOrDefault("CRM_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),

		AttachmentsRoot: getEnvOrDefault("CRM_MAIL_ATTACHMENTS_ROOT", "data/attachments"),

		SyncInterval:      getDurationOrDefault("CRM_MAIL_SYNC_INTERVAL", time.Minute),
		FirstSyncLimit:    getIntOrDefault("CRM_MAIL_FIRST_SYNC_LIMIT", 20),
		PerCycleLimit:     getIntOrDefault("CRM_MAIL_PER_CYCLE_LIMIT", 100),
		ConnectTimeout:    getDurationOrDefault("CRM_MAIL_CONNECT_TIMEOUT", 15*time.Second),
		ManualSyncTimeout: getDurationOrDefault("CRM_MAIL_MANUAL_SYNC_TIMEOUT", 60*time.Second),

		OAuthClientID:     os.Getenv("CRM_OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("CRM_OAUTH_CLIENT_SECRET"),
		OAuthAuthURL:      getEnvOrDefault("CRM_OAUTH_AUTH_URL", "https://accounts.google.com/o/oauth2/auth"),
		OAuthTokenURL:     getEnvOrDefault("CRM_OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		OAuthRedirectURL:  os.Getenv("CRM_OAUTH_REDIRECT_URL"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("CRM_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("CRM_DB_PASSWORD is required")
	}

	if c.FirstSyncLimit <= 0 || c.PerCycleLimit <= 0 {
		return fmt.Errorf("sync fetch limits must be positive")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
