package classifier

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

// MockClient is a configurable Client for tests. Unset funcs return a fixed
// general_feedback classification, a 4-dimension vector, "ok" and no match.
type MockClient struct {
	EmbedFunc         func(ctx context.Context, text string) ([]float32, error)
	ClassifyFunc      func(ctx context.Context, text string, cc ClassifyContext) (*models.Classification, error)
	AnswerFunc        func(ctx context.Context, question string, items []*models.FeedbackItem) (string, error)
	MatchCriteriaFunc func(ctx context.Context, criteria string, item *models.FeedbackItem) (bool, string, error)

	mu                 sync.Mutex
	EmbedCalls         int
	ClassifyCalls      int
	AnswerCalls        int
	MatchCriteriaCalls int
	LastAnswerItems    []*models.FeedbackItem
}

// NewMockClient creates a mock with default behavior.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Embed implements Client.
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.EmbedCalls++
	m.mu.Unlock()
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{1, 0, 0, 0}, nil
}

// Classify implements Client.
func (m *MockClient) Classify(ctx context.Context, text string, cc ClassifyContext) (*models.Classification, error) {
	m.mu.Lock()
	m.ClassifyCalls++
	m.mu.Unlock()
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, text, cc)
	}
	return &models.Classification{
		Sentiment:  models.SentimentNeutral,
		Topics:     []string{"support"},
		Urgency:    models.UrgencyLow,
		Intent:     models.IntentGeneralFeedback,
		Summary:    "mock summary",
		Confidence: 0.8,
	}, nil
}

// Answer implements Client.
func (m *MockClient) Answer(ctx context.Context, question string, items []*models.FeedbackItem) (string, error) {
	m.mu.Lock()
	m.AnswerCalls++
	m.LastAnswerItems = items
	m.mu.Unlock()
	if m.AnswerFunc != nil {
		return m.AnswerFunc(ctx, question, items)
	}
	return "ok", nil
}

// MatchCriteria implements Client.
func (m *MockClient) MatchCriteria(ctx context.Context, criteria string, item *models.FeedbackItem) (bool, string, error) {
	m.mu.Lock()
	m.MatchCriteriaCalls++
	m.mu.Unlock()
	if m.MatchCriteriaFunc != nil {
		return m.MatchCriteriaFunc(ctx, criteria, item)
	}
	return false, "", nil
}

// Calls returns a snapshot of the call counters (embed, classify, answer, match).
func (m *MockClient) Calls() (embed, classify, answer, match int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EmbedCalls, m.ClassifyCalls, m.AnswerCalls, m.MatchCriteriaCalls
}

var _ Client = (*MockClient)(nil)
