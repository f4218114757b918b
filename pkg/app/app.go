// Package app wires the feedback store, provider clients and services from
// configuration. The server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/classifier"
	"github.com/ekaya-inc/ekaya-feedback/pkg/config"
	"github.com/ekaya-inc/ekaya-feedback/pkg/database"
	"github.com/ekaya-inc/ekaya-feedback/pkg/jobs"
	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedback/pkg/metrics"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/ranking"
	"github.com/ekaya-inc/ekaya-feedback/pkg/repositories"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

// App holds the process-lifetime components.
type App struct {
	Config     *config.Config
	Repo       repositories.FeedbackRepository
	Providers  *classifier.Providers
	Classifier classifier.Client
	Metrics    *metrics.Metrics
	Jobs       *jobs.Registry

	Ingestion services.IngestionService
	Query     services.QueryService
	Importer  services.ImportService
	Settings  services.SettingsService

	closeStore func()
	logger     *zap.Logger
}

// New opens the store (applying migrations), builds provider clients from
// cfg.AI and constructs the services. A provider that cannot be built is
// logged and left unconfigured; calls then fail with a provider error until
// settings are fixed at runtime.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	repo, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()
	providers := classifier.NewProviders(nil, nil)
	client := classifier.NewClient(providers, classifier.Options{
		Limiter:    llm.NewRateLimiter(cfg.AI.RequestsPerSecond, cfg.AI.Burst),
		MaxRetries: cfg.AI.MaxRetries,
		Metrics:    m,
		Breaker: llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
			Threshold:  cfg.AI.BreakerThreshold,
			ResetAfter: cfg.AI.BreakerReset,
		}),
	}, logger)

	settings := services.NewSettingsService(
		ProviderSettings(cfg.AI),
		providers,
		llm.NewClientFactory(logger),
		llm.NewConnectionTester(),
		logger,
	)
	if _, err := settings.Update(ctx, models.SettingsUpdate{}); err != nil {
		logger.Warn("AI provider not configured; classification is unavailable until settings are updated",
			zap.String("provider", cfg.AI.Provider),
			zap.String("error", logging.SanitizeError(err)))
	}

	registry := jobs.NewRegistry(cfg.Import.MaxJobs, logger)
	ingestion := services.NewIngestionService(repo, client, m, logger)

	return &App{
		Config:     cfg,
		Repo:       repo,
		Providers:  providers,
		Classifier: client,
		Metrics:    m,
		Jobs:       registry,
		Ingestion:  ingestion,
		Query:      services.NewQueryService(repo, client, logger),
		Importer:   services.NewImportService(ingestion, registry, m, logger),
		Settings:   settings,
		closeStore: closeStore,
		logger:     logger,
	}, nil
}

// Close cancels running imports, waits for their workers until ctx is done
// and closes the store.
func (a *App) Close(ctx context.Context) error {
	err := a.Importer.Shutdown(ctx)
	if err != nil {
		a.logger.Warn("Import workers did not stop before shutdown deadline", zap.Error(err))
	}
	a.closeStore()
	return err
}

// ProviderSettings converts the configured AI section to runtime settings.
func ProviderSettings(ai config.AIConfig) models.ProviderSettings {
	return models.ProviderSettings{
		Provider:            models.ProviderName(ai.Provider),
		BaseURL:             ai.BaseURL,
		APIKey:              ai.APIKey,
		AnthropicAPIKey:     ai.AnthropicAPIKey,
		ClassificationModel: ai.ClassificationModel,
		EmbeddingBaseURL:    ai.EmbeddingBaseURL,
		EmbeddingModel:      ai.EmbeddingModel,
		EmbeddingDims:       ai.EmbeddingDims,
	}
}

// OpenStore connects to the configured database, applies migrations and
// returns the feedback repository with a close function.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.FeedbackRepository, func(), error) {
	ranker := ranking.NewChromemRanker(logger)

	switch cfg.Database.Driver {
	case "sqlite":
		db, err := database.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := database.RunSQLiteMigrations(db, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Connected to SQLite", zap.String("path", cfg.Database.SQLitePath))
		return repositories.NewSQLiteFeedbackRepository(db, ranker, logger), func() { db.Close() }, nil

	case "postgres":
		if err := MigratePostgres(cfg, logger); err != nil {
			return nil, nil, err
		}
		db, err := database.NewConnection(ctx, &database.Config{
			URL:             cfg.Database.ConnectionString(),
			MaxConnections:  cfg.Database.MaxConnections,
			ConnectAttempts: 5,
			ConnectBackoff:  2 * time.Second,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected to PostgreSQL",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Database))
		return repositories.NewPostgresFeedbackRepository(db, ranker, logger), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// MigratePostgres applies the PostgreSQL migrations over a short-lived
// database/sql connection.
func MigratePostgres(cfg *config.Config, logger *zap.Logger) error {
	stdDB, err := database.OpenPostgresSQL(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer stdDB.Close()

	if err := database.RunPostgresMigrations(stdDB, logger); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	return nil
}
