package services

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/classifier"
	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

// SettingsService manages the provider settings for the lifetime of the process.
// Nothing is persisted; a restart returns to the configured values.
type SettingsService interface {
	// Get returns the current settings with API keys masked.
	Get() models.SettingsView

	// Update applies patch, rebuilds the provider clients and swaps them in.
	// On error the previous settings stay active.
	Update(ctx context.Context, patch models.SettingsUpdate) (models.SettingsView, error)

	// TestAPIKey tests the current settings with patch applied, without saving.
	TestAPIKey(ctx context.Context, patch models.SettingsUpdate) (*llm.TestResult, error)

	// Current returns the unmasked settings.
	Current() models.ProviderSettings
}

type settingsService struct {
	mu        sync.RWMutex
	settings  models.ProviderSettings
	providers *classifier.Providers
	factory   llm.ClientFactory
	tester    llm.ConnectionTester
	logger    *zap.Logger
}

// NewSettingsService creates a SettingsService seeded with initial.
func NewSettingsService(
	initial models.ProviderSettings,
	providers *classifier.Providers,
	factory llm.ClientFactory,
	tester llm.ConnectionTester,
	logger *zap.Logger,
) SettingsService {
	return &settingsService{
		settings:  initial,
		providers: providers,
		factory:   factory,
		tester:    tester,
		logger:    logger.Named("settings-service"),
	}
}

var _ SettingsService = (*settingsService)(nil)

func (s *settingsService) Get() models.SettingsView {
	return maskSettings(s.Current())
}

func (s *settingsService) Current() models.ProviderSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *settingsService) Update(ctx context.Context, patch models.SettingsUpdate) (models.SettingsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := applySettingsUpdate(s.settings, patch)
	if err := validateSettings(next); err != nil {
		return models.SettingsView{}, err
	}

	chat, err := s.factory.NewChatClient(next)
	if err != nil {
		return models.SettingsView{}, apperrors.NewValidationError("provider", "%s", logging.SanitizeError(err))
	}
	embedder, err := s.factory.NewEmbedder(next)
	if err != nil {
		return models.SettingsView{}, apperrors.NewValidationError("embedding_model", "%s", logging.SanitizeError(err))
	}

	s.providers.Set(chat, embedder)
	s.settings = next

	s.logger.Info("Provider settings updated",
		zap.String("provider", string(next.Provider)),
		zap.String("classification_model", next.ClassificationModel),
		zap.String("embedding_model", next.EmbeddingModel),
		zap.Int("embedding_dimensions", next.EmbeddingDims),
		zap.String("api_key", logging.MaskAPIKey(next.APIKey)))
	return maskSettings(next), nil
}

func (s *settingsService) TestAPIKey(ctx context.Context, patch models.SettingsUpdate) (*llm.TestResult, error) {
	candidate := applySettingsUpdate(s.Current(), patch)
	if err := validateSettings(candidate); err != nil {
		return nil, err
	}
	result := s.tester.Test(ctx, candidate)
	s.logger.Debug("Tested provider connection",
		zap.String("provider", string(candidate.Provider)),
		zap.Bool("success", result.Success))
	return result, nil
}

func applySettingsUpdate(current models.ProviderSettings, patch models.SettingsUpdate) models.ProviderSettings {
	next := current
	if patch.Provider != nil {
		next.Provider = models.ProviderName(strings.ToLower(strings.TrimSpace(string(*patch.Provider))))
	}
	if patch.BaseURL != nil {
		next.BaseURL = strings.TrimSpace(*patch.BaseURL)
	}
	if patch.APIKey != nil {
		next.APIKey = strings.TrimSpace(*patch.APIKey)
	}
	if patch.AnthropicAPIKey != nil {
		next.AnthropicAPIKey = strings.TrimSpace(*patch.AnthropicAPIKey)
	}
	if patch.ClassificationModel != nil {
		next.ClassificationModel = strings.TrimSpace(*patch.ClassificationModel)
	}
	if patch.EmbeddingBaseURL != nil {
		next.EmbeddingBaseURL = strings.TrimSpace(*patch.EmbeddingBaseURL)
	}
	if patch.EmbeddingModel != nil {
		next.EmbeddingModel = strings.TrimSpace(*patch.EmbeddingModel)
	}
	if patch.EmbeddingDims != nil {
		next.EmbeddingDims = *patch.EmbeddingDims
	}
	return next
}

func validateSettings(s models.ProviderSettings) error {
	if !s.Provider.Valid() {
		return apperrors.NewValidationError("provider", "must be %q or %q", models.ProviderOpenAI, models.ProviderAnthropic)
	}
	if s.ClassificationModel == "" {
		return apperrors.NewValidationError("classification_model", "classification_model is required")
	}
	if s.EmbeddingModel == "" {
		return apperrors.NewValidationError("embedding_model", "embedding_model is required")
	}
	if s.EmbeddingDims <= 0 {
		return apperrors.NewValidationError("embedding_dimensions", "must be > 0")
	}
	if s.Provider == models.ProviderAnthropic && s.AnthropicAPIKey == "" {
		return apperrors.NewValidationError("anthropic_api_key", "required for the anthropic provider")
	}
	return nil
}

func maskSettings(s models.ProviderSettings) models.SettingsView {
	view := models.SettingsView{
		ProviderSettings:          s,
		APIKeyConfigured:          s.APIKey != "",
		AnthropicAPIKeyConfigured: s.AnthropicAPIKey != "",
	}
	view.APIKey = logging.MaskAPIKey(s.APIKey)
	view.AnthropicAPIKey = logging.MaskAPIKey(s.AnthropicAPIKey)
	return view
}
