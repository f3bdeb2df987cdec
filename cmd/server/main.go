package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/cropbatch/internal"
	"github.com/DukeRupert/cropbatch/internal/handler"
	"github.com/DukeRupert/cropbatch/internal/metrics"
	"github.com/DukeRupert/cropbatch/internal/middleware"
	"github.com/DukeRupert/cropbatch/internal/notify"
	"github.com/DukeRupert/cropbatch/internal/service"
	"github.com/DukeRupert/cropbatch/internal/session"
	"github.com/DukeRupert/cropbatch/internal/storage"
	"github.com/DukeRupert/cropbatch/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize storage
	store, local, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// Notice feed
	hub := notify.NewHub(logger)
	go hub.Run(ctx)

	// Initialize services
	sessions := session.NewStore()
	codec := service.NewImagingCodec()

	sessionService := service.NewSessionService(sessions, store, service.NewPreviewRenderer(codec), service.SessionServiceConfig{
		DefaultExport:  cfg.DefaultExport,
		PreviewMaxSize: cfg.PreviewMaxSize,
	}, logger)
	intakeService := service.NewIntakeService(sessions, store, codec, hub, service.IntakeServiceConfig{
		MaxImageSize: cfg.MaxImageSize,
	}, logger)
	exportService := service.NewExportService(sessions, store, codec, hub, service.ExportServiceConfig{
		Concurrency: cfg.ExportConcurrency,
		URLExpiry:   cfg.R2URLExpiry,
	}, logger)

	// Expire idle sessions
	janitorCfg := worker.DefaultConfig()
	janitorCfg.SessionTTL = cfg.SessionTTL
	janitorCfg.PollInterval = cfg.JanitorInterval
	janitor, err := worker.NewJanitor(sessionService, janitorCfg, logger)
	if err != nil {
		return fmt.Errorf("janitor initialization failed: %w", err)
	}
	janitor.Start(ctx)
	defer janitor.Stop()

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(sessionService, intakeService, hub, handler.SessionHandlerConfig{
		MaxUploadSize: cfg.MaxUploadSize,
	}, logger)
	exportHandler := handler.NewExportHandler(exportService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics
	metricsAuth := middleware.NewBasicAuthMiddleware("metrics", cfg.MetricsUsername, cfg.MetricsPassword)
	if !metricsAuth.Enabled() {
		logger.Warn("metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Locally stored originals and exports
	if local != nil {
		files := http.FileServer(http.Dir(local.BasePath()))
		mux.Handle("GET /files/", http.StripPrefix("/files/", files))
	}

	sessionHandler.RegisterRoutes(mux)
	exportHandler.RegisterRoutes(mux)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	stack := middleware.Stack(
		metrics.Middleware,
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		middleware.NewSecurityHeadersMiddleware(cfg.IsProduction()).Handler,
	)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           stack(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage builds the configured backend. The local backend is also
// returned so its directory can be served under /files/.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, *storage.LocalStorage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		r2, err := storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return r2, nil, nil
	default:
		local, err := storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
