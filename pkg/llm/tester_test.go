package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

func TestConnectionTester_OpenAICompatible(t *testing.T) {
	server := fakeOpenAI(t, 200, 8)
	tester := NewConnectionTester()

	result := tester.Test(context.Background(), models.ProviderSettings{
		Provider:            models.ProviderOpenAI,
		BaseURL:             server.URL + "/v1",
		APIKey:              "sk-test",
		ClassificationModel: "gpt-4o-mini",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDims:       8,
	})

	assert.True(t, result.Success, result.Message)
	assert.True(t, result.LLMSuccess)
	assert.True(t, result.EmbeddingSuccess)
	assert.Equal(t, 8, result.EmbeddingDims)
}

func TestConnectionTester_DimensionMismatch(t *testing.T) {
	server := fakeOpenAI(t, 200, 4)
	tester := NewConnectionTester()

	result := tester.Test(context.Background(), models.ProviderSettings{
		Provider:            models.ProviderOpenAI,
		BaseURL:             server.URL + "/v1",
		ClassificationModel: "gpt-4o-mini",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDims:       768,
	})

	assert.False(t, result.Success)
	assert.True(t, result.LLMSuccess)
	assert.False(t, result.EmbeddingSuccess)
	assert.Equal(t, ErrorTypeModel, result.EmbeddingErrorType)
	assert.Equal(t, "LLM connection successful, embedding failed", result.Message)
}

func TestConnectionTester_InvalidKey(t *testing.T) {
	server := fakeOpenAI(t, 401, 4)
	tester := NewConnectionTester()

	result := tester.Test(context.Background(), models.ProviderSettings{
		Provider:            models.ProviderOpenAI,
		BaseURL:             server.URL + "/v1",
		APIKey:              "sk-wrong",
		ClassificationModel: "gpt-4o-mini",
	})

	assert.False(t, result.Success)
	assert.Equal(t, ErrorTypeAuth, result.LLMErrorType)
	assert.Equal(t, "LLM: Invalid API key", result.Message)
}

func TestConnectionTester_AnthropicWithoutKey(t *testing.T) {
	tester := NewConnectionTester()

	result := tester.Test(context.Background(), models.ProviderSettings{
		Provider:            models.ProviderAnthropic,
		ClassificationModel: "claude-3-5-haiku-latest",
	})

	assert.False(t, result.Success)
	assert.Equal(t, ErrorTypeAuth, result.LLMErrorType)
	assert.Equal(t, "anthropic", result.Provider)
}
