package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hartwellkc/clubsite/internal/backup"
	"github.com/hartwellkc/clubsite/internal/config"
	"github.com/hartwellkc/clubsite/internal/database"
	"github.com/hartwellkc/clubsite/internal/email"
	"github.com/hartwellkc/clubsite/internal/logging"
	"github.com/hartwellkc/clubsite/internal/middleware"
	"github.com/hartwellkc/clubsite/internal/reconcile"
	"github.com/hartwellkc/clubsite/internal/server"
	clubstripe "github.com/hartwellkc/clubsite/internal/stripe"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)

	srv, err := server.New(db, server.Config{
		Stripe: clubstripe.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		},
		BaseURL:     cfg.BaseURL,
		TokenSecret: cfg.AuthTokenSecret,
		EmailClient: emailClient,
	}, logger)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger.With("component", "http"))(srv.Router()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Hourly cleanup of expired sessions, auth codes, and webhook audit rows
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.CleanupExpired()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	// Reconciliation sweep against the gateway for stale pending payments
	if gw := srv.Gateway(); gw != nil {
		sweeper := reconcile.NewSweeper(srv.Payments(), srv.Reconciler(), gw,
			cfg.SweepInterval, 0, logger.With("component", "sweep"))
		go sweeper.Run(bgCtx)
	}

	// Nightly encrypted offsite backup
	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.BackupEndpoint,
			Bucket:    cfg.BackupBucket,
			Region:    cfg.BackupRegion,
			AccessKey: cfg.BackupAccessKey,
			SecretKey: cfg.BackupSecretKey,
		},
		Passphrase: cfg.BackupPassphrase,
	}, db, logger.With("component", "backup"))
	go backupMgr.Run(bgCtx)

	go func() {
		slog.Info("clubsite starting", "addr", ":"+cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
