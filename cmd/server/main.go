package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/inboxops/mailtriage/internal/classify"
	"github.com/inboxops/mailtriage/internal/compiler"
	"github.com/inboxops/mailtriage/internal/config"
	"github.com/inboxops/mailtriage/internal/detect"
	"github.com/inboxops/mailtriage/internal/engine"
	"github.com/inboxops/mailtriage/internal/logging"
	"github.com/inboxops/mailtriage/internal/mailer"
	"github.com/inboxops/mailtriage/internal/processor"
	"github.com/inboxops/mailtriage/internal/storage"
	"github.com/inboxops/mailtriage/internal/store"
	"github.com/inboxops/mailtriage/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"engine_interval", cfg.Engine.Interval,
		"poll_interval", cfg.Poller.Interval,
		"mailboxes", len(cfg.Mailer.Mailboxes),
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	// Core wiring: store, artifact store, compiler, propagation engine
	st := store.NewPG(pool)
	objects := storage.NewClient(cfg.Storage.URL, cfg.Storage.APIKey, cfg.Storage.Bucket)
	comp := compiler.New(st, objects)
	eng := engine.New(st, comp)

	// Change detectors
	poller := detect.NewPoller(st, comp, cfg.Poller.Interval)
	notifier := detect.NewNotifier(st, comp)

	// Mail pipeline: provider client, classifier, processor
	mail := mailer.New(mailer.Config{
		TenantID:     cfg.Mailer.TenantID,
		ClientID:     cfg.Mailer.ClientID,
		ClientSecret: cfg.Mailer.ClientSecret,
		BaseURL:      cfg.Mailer.BaseURL,
		AuthURL:      cfg.Mailer.AuthURL,
		ClientState:  cfg.Mailer.ClientState,
	})
	classifier := classify.New(cfg.Classifier.APIKey, cfg.Classifier.BaseURL, cfg.Classifier.Model)
	proc := processor.New(mail, classifier, st, comp)

	server := web.NewServer(cfg, proc, notifier)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go eng.StartScheduler(jobCtx, cfg.Engine.Interval)
	go poller.Run(jobCtx)

	// Subscribe configured mailboxes to inbox notifications
	if len(cfg.Mailer.Mailboxes) > 0 {
		notificationURL := strings.TrimSuffix(cfg.Server.PublicURL, "/") + "/notification"
		for _, mailbox := range cfg.Mailer.Mailboxes {
			sub, err := mail.Subscribe(ctx, notificationURL, mailbox)
			if err != nil {
				slog.Error("mailbox subscription failed", "mailbox", mailbox, "error", err)
				continue
			}
			server.RegisterSubscription(sub.ID, mailbox)
			slog.Info("mailbox subscribed",
				"mailbox", mailbox,
				"subscription_id", sub.ID,
				"expires", sub.Expiration,
			)
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
