package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/safetyline/internal"
	"github.com/DukeRupert/safetyline/internal/draft"
	"github.com/DukeRupert/safetyline/internal/email"
	"github.com/DukeRupert/safetyline/internal/export"
	"github.com/DukeRupert/safetyline/internal/handler"
	"github.com/DukeRupert/safetyline/internal/jobs"
	"github.com/DukeRupert/safetyline/internal/metrics"
	"github.com/DukeRupert/safetyline/internal/middleware"
	"github.com/DukeRupert/safetyline/internal/notify"
	"github.com/DukeRupert/safetyline/internal/service"
	"github.com/DukeRupert/safetyline/internal/storage"
	"github.com/DukeRupert/safetyline/internal/store"
	"github.com/DukeRupert/safetyline/internal/worker"
)

func run() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// ==========================================================================
	// Database and document store
	// ==========================================================================

	var db *sql.DB
	if cfg.DatabaseUrl != "" {
		db, err = sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		if err := internal.RunMigrations(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("database ready")
	}

	docs, err := openDocumentStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer docs.Close(context.Background())
	logger.Info("document store ready", "backend", cfg.DocumentStore)

	reports := store.NewIncidentReports(docs)
	users := store.NewUsers(docs)

	// ==========================================================================
	// Blob storage and mail
	// ==========================================================================

	blobs, publicBase, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}

	var mailer email.Mailer
	switch cfg.MailProvider {
	case "sendgrid":
		mailer = email.NewSendGridMailer(email.SendGridConfig{APIKey: cfg.SendGridAPIKey, From: cfg.SMTPFrom}, logger)
	default:
		mailer = email.NewSMTPMailer(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
	}

	gateway := notify.NewGateway(mailer, cfg.MailGatewaySecret, logger)
	notifier := notify.NewClient(cfg.MailGatewayURL, cfg.MailGatewayToken)

	// ==========================================================================
	// Worker
	// ==========================================================================

	submissionOpts := []service.SubmissionOption{
		service.WithPublicBase(publicBase),
		service.WithMaxAttachmentBytes(cfg.MaxAttachmentBytes),
	}

	var bgWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout
		workerCfg.RetryBase = cfg.WorkerRetryBase
		workerCfg.MaxAttempts = int32(cfg.WorkerMaxAttempts)
		queue := worker.NewQueue(db, workerCfg.RetryBase)

		bgWorker, err = worker.New(queue, workerCfg, logger.With("component", "worker"))
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		bgWorker.Register(jobs.NewDeliverNotificationHandler(reports, blobs, publicBase, notifier, logger))
		submissionOpts = append(submissionOpts, service.WithRedeliveryQueue(worker.NewNotificationQueue(queue, workerCfg)))
	}

	// ==========================================================================
	// Services and handlers
	// ==========================================================================

	submissions := service.NewSubmissionService(reports, blobs, service.NewImagingProcessor(), notifier, logger, submissionOpts...)
	listing := service.NewListingService(reports, logger)
	prefill := service.NewPrefillService(users, logger)
	plans := service.NewReturnToWorkService(store.NewReturnToWorkPlans(docs), logger)
	exports := export.NewService(docs, export.NewFetcher(blobs, publicBase), logger)

	drafts := draft.NewRegistry(cfg.DraftTTL, logger)
	go drafts.Run(ctx)

	authMw := middleware.NewAuthMiddleware(users, cfg.JWTSecret, logger,
		middleware.WithIssuer(cfg.JWTIssuer),
		middleware.WithAdminEmails(cfg.AdminEmails),
	)
	limiter := middleware.NewAPIRateLimiter(logger)
	defer limiter.Stop()

	maxBody := cfg.MaxAttachmentBytes * 8

	incidentHandler := handler.NewIncidentHandler(submissions, listing, maxBody, logger)
	draftHandler := handler.NewDraftHandler(drafts, prefill, listing, submissions, maxBody, logger)
	referenceHandler := handler.NewReferenceHandler(prefill, logger)
	returnToWorkHandler := handler.NewReturnToWorkHandler(plans, logger)
	exportHandler := handler.NewExportHandler(exports, logger)
	gatewayHandler := handler.NewGatewayHandler(gateway, logger)
	contactHandler := handler.NewContactHandler(notify.NewContactDesk(mailer, cfg.ContactInbox, logger), logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics
	scrapeAuth := middleware.NewScrapeAuth(cfg.MetricsUsername, cfg.MetricsPassword, logger)
	mux.Handle("GET /metrics", scrapeAuth.Handler(promhttp.Handler()))
	if !scrapeAuth.Enabled() {
		logger.Warn("metrics endpoint is unprotected")
	}

	// Locally stored blobs
	if cfg.StorageProvider == storage.ProviderLocal {
		files := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", files))
	}

	requireUser := authMw.Authenticated

	incidentHandler.RegisterRoutes(mux, requireUser, limiter.LimitSubmit)
	draftHandler.RegisterRoutes(mux, requireUser, limiter.LimitSubmit)
	referenceHandler.RegisterRoutes(mux, requireUser)
	returnToWorkHandler.RegisterRoutes(mux, requireUser)
	exportHandler.RegisterRoutes(mux, requireUser)
	gatewayHandler.RegisterRoutes(mux, limiter.LimitGateway)
	contactHandler.RegisterRoutes(mux, limiter.LimitContact)

	securityMw := middleware.NewSecurityHeadersMiddleware(!cfg.IsDevelopment())
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	root := middleware.Stack(securityMw.Handler, loggingMw.Handler, metrics.Middleware)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if bgWorker != nil {
		bgWorker.Start(ctx)
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-serverErr:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if bgWorker != nil {
		bgWorker.Stop()
	}
	stop()

	logger.Info("server stopped")
	return nil
}

// openDocumentStore returns the backend named by DOCUMENT_STORE.
func openDocumentStore(ctx context.Context, cfg *internal.Config, db *sql.DB) (store.DocumentStore, error) {
	switch cfg.DocumentStore {
	case "postgres":
		return store.NewPostgresStore(db), nil
	case "mongo":
		m, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		return m, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

// openStorage returns the blob store and the public URL prefix of its objects.
func openStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, string, error) {
	if cfg.StorageProvider == storage.ProviderR2 {
		r2, err := storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
		if err != nil {
			return nil, "", fmt.Errorf("r2 storage initialization failed: %w", err)
		}
		return r2, strings.TrimRight(cfg.R2PublicURL, "/"), nil
	}

	local, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath: cfg.LocalStoragePath,
		BaseURL:  cfg.LocalStorageURL,
	}, logger)
	if err != nil {
		return nil, "", fmt.Errorf("local storage initialization failed: %w", err)
	}
	return local, strings.TrimRight(cfg.LocalStorageURL, "/"), nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
