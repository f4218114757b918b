package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

// ClientFactory builds provider clients from runtime settings.
// Use this interface for dependency injection and testing.
type ClientFactory interface {
	NewChatClient(settings models.ProviderSettings) (ChatClient, error)
	NewEmbedder(settings models.ProviderSettings) (Embedder, error)
}

type clientFactory struct {
	logger *zap.Logger
}

// NewClientFactory creates a factory for the configured providers.
func NewClientFactory(logger *zap.Logger) ClientFactory {
	return &clientFactory{logger: logger}
}

// NewChatClient creates the chat client for the selected provider.
func (f *clientFactory) NewChatClient(settings models.ProviderSettings) (ChatClient, error) {
	switch settings.Provider {
	case models.ProviderAnthropic:
		client, err := NewAnthropicClient(&Config{
			Model:  settings.ClassificationModel,
			APIKey: settings.AnthropicAPIKey,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	case models.ProviderOpenAI, "":
		client, err := NewClient(&Config{
			Endpoint: settings.BaseURL,
			Model:    settings.ClassificationModel,
			APIKey:   settings.APIKey,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("create chat client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", settings.Provider)
	}
}

// NewEmbedder creates the embedding client. Embeddings always use an
// OpenAI-compatible endpoint, falling back to the chat base URL.
func (f *clientFactory) NewEmbedder(settings models.ProviderSettings) (Embedder, error) {
	client, err := NewClient(&Config{
		Endpoint:   EffectiveEmbeddingBaseURL(settings),
		Model:      settings.EmbeddingModel,
		APIKey:     settings.APIKey,
		Dimensions: settings.EmbeddingDims,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	return client, nil
}

// EffectiveEmbeddingBaseURL returns the embedding URL, falling back to the chat URL.
func EffectiveEmbeddingBaseURL(settings models.ProviderSettings) string {
	if settings.EmbeddingBaseURL != "" {
		return settings.EmbeddingBaseURL
	}
	return settings.BaseURL
}

// Ensure clientFactory implements ClientFactory at compile time.
var _ ClientFactory = (*clientFactory)(nil)
