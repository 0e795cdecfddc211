// Package backup ships encrypted snapshots of the club database to
// S3-compatible storage. Member and payment records are the only copy of the
// club's books outside the gateway, so they go offsite nightly.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	S3         S3Config
	Passphrase string
	Interval   time.Duration
}

// Manager runs scheduled encrypted database backups.
type Manager struct {
	cfg    Config
	db     *sql.DB
	client s3Client
	logger *slog.Logger
}

// NewManager creates a backup manager. With incomplete S3 credentials or no
// passphrase the manager is disabled: Enabled reports false and Run returns
// immediately.
func NewManager(cfg Config, db *sql.DB, logger *slog.Logger) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	m := &Manager{cfg: cfg, db: db, logger: logger}
	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Run performs a backup on the configured interval until the context is
// cancelled.
func (m *Manager) Run(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Info("backups disabled: storage or passphrase not configured")
		return
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if key, err := m.BackupOnce(ctx); err != nil {
				m.logger.Error("backup failed", "error", err)
			} else {
				m.logger.Info("backup uploaded", "key", key)
			}
		case <-ctx.Done():
			return
		}
	}
}

// BackupOnce snapshots the database with VACUUM INTO, encrypts the snapshot,
// and uploads it. Returns the object key.
func (m *Manager) BackupOnce(ctx context.Context) (string, error) {
	if !m.Enabled() {
		return "", fmt.Errorf("backup manager disabled")
	}

	tmpDir, err := os.MkdirTemp("", "clubsite-backup-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return "", fmt.Errorf("vacuum into snapshot: %w", err)
	}

	encrypted := snapshot + ".enc"
	if err := EncryptFile(snapshot, encrypted, m.cfg.Passphrase); err != nil {
		return "", fmt.Errorf("encrypt snapshot: %w", err)
	}

	f, err := os.Open(encrypted)
	if err != nil {
		return "", fmt.Errorf("open encrypted snapshot: %w", err)
	}
	defer f.Close()

	key := fmt.Sprintf("backups/clubsite-%s.db.enc", time.Now().UTC().Format("20060102-150405"))
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}
	return key, nil
}
