package models

// ProviderName selects the chat provider used for classification and answers.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
)

// Valid returns true if p is a supported provider.
func (p ProviderName) Valid() bool {
	return p == ProviderOpenAI || p == ProviderAnthropic
}

// ProviderSettings is the process-lifetime AI provider configuration.
// Embeddings always go through the OpenAI-compatible endpoint.
type ProviderSettings struct {
	Provider            ProviderName `json:"provider"`
	BaseURL             string       `json:"base_url"`
	APIKey              string       `json:"api_key,omitempty"`
	AnthropicAPIKey     string       `json:"anthropic_api_key,omitempty"`
	ClassificationModel string       `json:"classification_model"`
	EmbeddingBaseURL    string       `json:"embedding_base_url,omitempty"`
	EmbeddingModel      string       `json:"embedding_model"`
	EmbeddingDims       int          `json:"embedding_dimensions"`
}

// SettingsUpdate is a partial update; nil fields are left unchanged.
type SettingsUpdate struct {
	Provider            *ProviderName `json:"provider,omitempty"`
	BaseURL             *string       `json:"base_url,omitempty"`
	APIKey              *string       `json:"api_key,omitempty"`
	AnthropicAPIKey     *string       `json:"anthropic_api_key,omitempty"`
	ClassificationModel *string       `json:"classification_model,omitempty"`
	EmbeddingBaseURL    *string       `json:"embedding_base_url,omitempty"`
	EmbeddingModel      *string       `json:"embedding_model,omitempty"`
	EmbeddingDims       *int          `json:"embedding_dimensions,omitempty"`
}

// SettingsView is ProviderSettings with secrets masked for display.
type SettingsView struct {
	ProviderSettings
	APIKeyConfigured          bool `json:"api_key_configured"`
	AnthropicAPIKeyConfigured bool `json:"anthropic_api_key_configured"`
}
