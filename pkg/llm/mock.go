package llm

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

// MockChatClient is a configurable mock for testing chat completions.
// Set the function fields to control behavior in tests.
type MockChatClient struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, returns an empty string and nil error.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64, maxTokens int) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	mu sync.Mutex
	// Call tracking for verification
	GenerateResponseCalls int
	LastPrompt            string
}

// NewMockChatClient creates a new mock with sensible defaults.
func NewMockChatClient() *MockChatClient {
	return &MockChatClient{Model: "mock-model"}
}

// GenerateResponse implements ChatClient.
func (m *MockChatClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, maxTokens int) (string, error) {
	m.mu.Lock()
	m.GenerateResponseCalls++
	m.LastPrompt = prompt
	m.mu.Unlock()
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature, maxTokens)
	}
	return "", nil
}

// GetModel implements ChatClient.
func (m *MockChatClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Provider implements ChatClient.
func (m *MockChatClient) Provider() string {
	return "mock"
}

// Calls returns the number of GenerateResponse calls so far.
func (m *MockChatClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GenerateResponseCalls
}

// MockEmbedder is a configurable mock for testing embeddings.
type MockEmbedder struct {
	// CreateEmbeddingFunc is called when CreateEmbedding is invoked.
	// If nil, returns a deterministic vector of length Dims.
	CreateEmbeddingFunc func(ctx context.Context, input string) ([]float32, error)

	// Dims is the length of the default vector. Defaults to 8.
	Dims int

	mu                   sync.Mutex
	CreateEmbeddingCalls int
}

// NewMockEmbedder creates a new mock embedder.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dims: 8}
}

// CreateEmbedding implements Embedder.
func (m *MockEmbedder) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	m.mu.Lock()
	m.CreateEmbeddingCalls++
	m.mu.Unlock()
	if m.CreateEmbeddingFunc != nil {
		return m.CreateEmbeddingFunc(ctx, input)
	}
	dims := m.Dims
	if dims <= 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	for i, r := range input {
		vec[i%dims] += float32(r%31) / 31
	}
	vec[0] += 1
	return vec, nil
}

// GetModel implements Embedder.
func (m *MockEmbedder) GetModel() string {
	return "mock-embedding"
}

// Provider implements Embedder.
func (m *MockEmbedder) Provider() string {
	return "mock"
}

// Calls returns the number of CreateEmbedding calls so far.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateEmbeddingCalls
}

// MockClientFactory returns preset clients.
type MockClientFactory struct {
	Chat     ChatClient
	Embedder Embedder

	// Err, when set, is returned from both constructors.
	Err error

	// LastSettings records the most recent settings passed in.
	LastSettings models.ProviderSettings
}

// NewMockClientFactory creates a factory that returns fresh mocks.
func NewMockClientFactory() *MockClientFactory {
	return &MockClientFactory{
		Chat:     NewMockChatClient(),
		Embedder: NewMockEmbedder(),
	}
}

// NewChatClient implements ClientFactory.
func (f *MockClientFactory) NewChatClient(settings models.ProviderSettings) (ChatClient, error) {
	f.LastSettings = settings
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Chat, nil
}

// NewEmbedder implements ClientFactory.
func (f *MockClientFactory) NewEmbedder(settings models.ProviderSettings) (Embedder, error) {
	f.LastSettings = settings
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Embedder, nil
}

// Ensure mocks implement the interfaces at compile time.
var (
	_ ChatClient    = (*MockChatClient)(nil)
	_ Embedder      = (*MockEmbedder)(nil)
	_ ClientFactory = (*MockClientFactory)(nil)
)
