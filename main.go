package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/app"
	"github.com/ekaya-inc/ekaya-feedback/pkg/config"
	"github.com/ekaya-inc/ekaya-feedback/pkg/handlers"
	"github.com/ekaya-inc/ekaya-feedback/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedback/pkg/mcp"
	"github.com/ekaya-inc/ekaya-feedback/pkg/middleware"
	"github.com/ekaya-inc/ekaya-feedback/ui"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("api_key", logging.MaskAPIKey(cfg.AI.APIKey)),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewFeedbackHandler(a.Ingestion, a.Query, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(a.Query, logger).RegisterRoutes(mux)
	handlers.NewAlertHandler(a.Query, logger).RegisterRoutes(mux)
	handlers.NewImportHandler(a.Importer, cfg.Import.MaxUploadBytes, logger).RegisterRoutes(mux)
	handlers.NewSettingsHandler(a.Settings, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewFeedbackServer(cfg.Version, a.Query, logger)
		handlers.NewMCPHandler(mcpServer, logger, cfg.MCP).RegisterRoutes(mux)
	}

	// Serve the dashboard
	mux.Handle("/", http.FileServer(http.FS(uiFS(cfg, logger))))

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting ekaya-feedback",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("Application shutdown incomplete", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// uiFS returns the dashboard files, from disk when UIDir is set.
func uiFS(cfg *config.Config, logger *zap.Logger) fs.FS {
	if cfg.UIDir != "" {
		logger.Info("Serving dashboard from disk", zap.String("dir", cfg.UIDir))
		return os.DirFS(cfg.UIDir)
	}
	return ui.DistFS()
}
