// Package config loads service configuration from the environment. A .env
// file in the working directory is read first when present; real environment
// variables win.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DatabasePath string
	BaseURL      string
	LogLevel     string

	StripeSecretKey     string
	StripeWebhookSecret string

	PostmarkToken string
	FromEmail     string

	AuthTokenSecret string

	SweepInterval time.Duration

	BackupBucket     string
	BackupRegion     string
	BackupEndpoint   string
	BackupAccessKey  string
	BackupSecretKey  string
	BackupPassphrase string
}

// Load reads configuration from the environment with development defaults.
func Load() Config {
	godotenv.Load()

	cfg := Config{
		Port:         getenv("CLUB_PORT", "8080"),
		DatabasePath: getenv("CLUB_DB_PATH", "clubsite.db"),
		LogLevel:     os.Getenv("CLUB_LOG_LEVEL"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		PostmarkToken: os.Getenv("CLUB_POSTMARK_TOKEN"),
		FromEmail:     os.Getenv("CLUB_FROM_EMAIL"),

		AuthTokenSecret: getenv("CLUB_AUTH_TOKEN_SECRET", "dev-only-secret"),

		SweepInterval: getduration("CLUB_SWEEP_INTERVAL", time.Hour),

		BackupBucket:     os.Getenv("CLUB_BACKUP_BUCKET"),
		BackupRegion:     getenv("CLUB_BACKUP_REGION", "auto"),
		BackupEndpoint:   os.Getenv("CLUB_BACKUP_ENDPOINT"),
		BackupAccessKey:  os.Getenv("CLUB_BACKUP_ACCESS_KEY"),
		BackupSecretKey:  os.Getenv("CLUB_BACKUP_SECRET_KEY"),
		BackupPassphrase: os.Getenv("CLUB_BACKUP_PASSPHRASE"),
	}
	cfg.BaseURL = getenv("CLUB_BASE_URL", fmt.Sprintf("http://localhost:%s", cfg.Port))
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
