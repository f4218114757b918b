package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

// TestResult contains connection test results.
type TestResult struct {
	Success            bool      `json:"success"`
	Message            string    `json:"message"`
	Provider           string    `json:"provider"`
	LLMSuccess         bool      `json:"llm_success"`
	LLMMessage         string    `json:"llm_message,omitempty"`
	LLMErrorType       ErrorType `json:"llm_error_type,omitempty"`
	LLMResponseTimeMs  int64     `json:"llm_response_time_ms,omitempty"`
	EmbeddingSuccess   bool      `json:"embedding_success"`
	EmbeddingMessage   string    `json:"embedding_message,omitempty"`
	EmbeddingErrorType ErrorType `json:"embedding_error_type,omitempty"`
	EmbeddingDims      int       `json:"embedding_dimensions,omitempty"`
}

// ConnectionTester tests AI provider connections.
// This interface enables mocking in tests.
type ConnectionTester interface {
	// Test tests both the chat and embedding connections for the given settings.
	Test(ctx context.Context, settings models.ProviderSettings) *TestResult
}

// connectionTester implements ConnectionTester with real API calls.
type connectionTester struct {
	timeout time.Duration
}

// NewConnectionTester creates a new tester.
func NewConnectionTester() ConnectionTester {
	return &connectionTester{timeout: 30 * time.Second}
}

// Test tests both chat and embedding connections.
func (t *connectionTester) Test(ctx context.Context, settings models.ProviderSettings) *TestResult {
	result := &TestResult{Provider: string(settings.Provider)}

	var llmResult singleResult
	switch settings.Provider {
	case models.ProviderAnthropic:
		llmResult = t.testAnthropic(ctx, settings.AnthropicAPIKey, settings.ClassificationModel)
	default:
		llmResult = t.testOpenAI(ctx, settings.BaseURL, settings.APIKey, settings.ClassificationModel)
	}
	result.LLMSuccess = llmResult.Success
	result.LLMMessage = llmResult.Message
	result.LLMErrorType = llmResult.ErrorType
	result.LLMResponseTimeMs = llmResult.ResponseTimeMs

	embURL := EffectiveEmbeddingBaseURL(settings)
	if embURL != "" && settings.EmbeddingModel != "" {
		embResult := t.testEmbedding(ctx, embURL, settings.APIKey, settings.EmbeddingModel, settings.EmbeddingDims)
		result.EmbeddingSuccess = embResult.Success
		result.EmbeddingMessage = embResult.Message
		result.EmbeddingErrorType = embResult.ErrorType
		result.EmbeddingDims = embResult.Dims
	}

	// Ingestion needs both, so overall success requires both.
	switch {
	case result.LLMSuccess && result.EmbeddingSuccess:
		result.Success = true
		result.Message = "LLM and embedding connections successful"
	case result.LLMSuccess && settings.EmbeddingModel == "":
		result.Message = "LLM connection successful (embedding not configured)"
	case result.LLMSuccess:
		result.Message = "LLM connection successful, embedding failed"
	default:
		result.Message = result.LLMMessage
	}

	return result
}

type singleResult struct {
	Success        bool
	Message        string
	ErrorType      ErrorType
	ResponseTimeMs int64
	Dims           int
}

func (t *connectionTester) testOpenAI(ctx context.Context, baseURL, apiKey, model string) singleResult {
	if baseURL == "" || model == "" {
		return singleResult{Message: "LLM: base URL and model are required", ErrorType: ErrorTypeEndpoint}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/")
	client := openai.NewClientWithConfig(config)

	start := time.Now()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Say 'ok' and nothing else."},
		},
		MaxCompletionTokens: 10,
	})

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		msg, errType := categorizeError("LLM", err)
		return singleResult{Message: msg, ErrorType: errType, ResponseTimeMs: elapsed}
	}

	if len(resp.Choices) == 0 {
		return singleResult{Message: "LLM returned no response", ErrorType: ErrorTypeUnknown}
	}

	return singleResult{
		Success:        true,
		Message:        fmt.Sprintf("LLM connection successful (model: %s, %dms)", model, elapsed),
		ResponseTimeMs: elapsed,
	}
}

func (t *connectionTester) testAnthropic(ctx context.Context, apiKey, model string) singleResult {
	if apiKey == "" {
		return singleResult{Message: "LLM: Anthropic API key is not configured", ErrorType: ErrorTypeAuth}
	}
	if model == "" {
		return singleResult{Message: "LLM: model is required", ErrorType: ErrorTypeModel}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	client := anthropic.NewClient(apiKey)
	prompt := "Say 'ok' and nothing else."

	start := time.Now()

	resp, err := client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		MaxTokens: 10,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		msg, errType := categorizeError("LLM", err)
		return singleResult{Message: msg, ErrorType: errType, ResponseTimeMs: elapsed}
	}

	if extractTextFromResponse(resp) == "" {
		return singleResult{Message: "LLM returned no response", ErrorType: ErrorTypeUnknown}
	}

	return singleResult{
		Success:        true,
		Message:        fmt.Sprintf("LLM connection successful (model: %s, %dms)", model, elapsed),
		ResponseTimeMs: elapsed,
	}
}

func (t *connectionTester) testEmbedding(ctx context.Context, baseURL, apiKey, model string, dims int) singleResult {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/")
	client := openai.NewClientWithConfig(config)

	start := time.Now()

	resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(model),
		Input:      []string{"test"},
		Dimensions: dims,
	})

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		msg, errType := categorizeError("Embedding", err)
		return singleResult{Message: msg, ErrorType: errType, ResponseTimeMs: elapsed}
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return singleResult{Message: "Embedding returned no vectors", ErrorType: ErrorTypeUnknown}
	}

	got := len(resp.Data[0].Embedding)
	if dims > 0 && got != dims {
		return singleResult{
			Message:   fmt.Sprintf("Embedding: model returned %d dimensions, expected %d", got, dims),
			ErrorType: ErrorTypeModel,
			Dims:      got,
		}
	}

	return singleResult{
		Success:        true,
		Message:        fmt.Sprintf("Embedding successful (model: %s, %dms, %d dims)", model, elapsed, got),
		ResponseTimeMs: elapsed,
		Dims:           got,
	}
}

// categorizeError turns a provider error into a user-facing message.
func categorizeError(prefix string, err error) (string, ErrorType) {
	llmErr := ClassifyError(err)

	switch llmErr.Type {
	case ErrorTypeAuth:
		return fmt.Sprintf("%s: Invalid API key", prefix), ErrorTypeAuth
	case ErrorTypeModel:
		return fmt.Sprintf("%s: Model not found", prefix), ErrorTypeModel
	case ErrorTypeRateLimit:
		return fmt.Sprintf("%s: Rate limited or quota exceeded", prefix), ErrorTypeRateLimit
	case ErrorTypeEndpoint:
		switch llmErr.Message {
		case "endpoint not found":
			return fmt.Sprintf("%s: Endpoint not found - check base URL", prefix), ErrorTypeEndpoint
		case "connection failed":
			return fmt.Sprintf("%s: Connection failed - check base URL", prefix), ErrorTypeEndpoint
		case "request timeout":
			return fmt.Sprintf("%s: Connection timed out", prefix), ErrorTypeEndpoint
		}
		return fmt.Sprintf("%s: Provider unavailable", prefix), ErrorTypeEndpoint
	}

	return fmt.Sprintf("%s: %s", prefix, llmErr.Message), ErrorTypeUnknown
}

// Ensure connectionTester implements ConnectionTester at compile time.
var _ ConnectionTester = (*connectionTester)(nil)
