// Package classifier labels and embeds feedback through the configured AI provider.
package classifier

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedback/pkg/metrics"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/prompts"
	"github.com/ekaya-inc/ekaya-feedback/pkg/retry"
)

// ClassifyContext is the optional metadata sent alongside the text.
type ClassifyContext struct {
	Source   models.FeedbackSource
	NPSScore *int
	Profile  *models.UserProfile
}

// Client is the classification surface used by ingestion and queries.
// Every method calls the provider; nothing is cached.
type Client interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Classify returns a classification satisfying every model invariant,
	// or an error wrapping apperrors.ErrInvalidClassification or an *llm.Error.
	Classify(ctx context.Context, text string, cc ClassifyContext) (*models.Classification, error)

	// Answer synthesizes an answer to question from up to 20 items.
	Answer(ctx context.Context, question string, items []*models.FeedbackItem) (string, error)

	// MatchCriteria reports whether item satisfies free-text criteria, with a short reason.
	MatchCriteria(ctx context.Context, criteria string, item *models.FeedbackItem) (bool, string, error)
}

// Providers holds the active chat and embedding clients. Settings updates
// swap both at once; in-flight calls keep the clients they started with.
type Providers struct {
	mu       sync.RWMutex
	chat     llm.ChatClient
	embedder llm.Embedder
	onSet    func()
}

// NewProviders creates a holder. Either client may be nil until configured.
func NewProviders(chat llm.ChatClient, embedder llm.Embedder) *Providers {
	return &Providers{chat: chat, embedder: embedder}
}

// Set replaces both clients.
func (p *Providers) Set(chat llm.ChatClient, embedder llm.Embedder) {
	p.mu.Lock()
	p.chat = chat
	p.embedder = embedder
	onSet := p.onSet
	p.mu.Unlock()

	if onSet != nil {
		onSet()
	}
}

// Chat returns the active chat client.
func (p *Providers) Chat() (llm.ChatClient, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.chat == nil {
		return nil, llm.NewError(llm.ErrorTypeAuth, "chat provider is not configured", false, nil)
	}
	return p.chat, nil
}

// Embedder returns the active embedding client.
func (p *Providers) Embedder() (llm.Embedder, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.embedder == nil {
		return nil, llm.NewError(llm.ErrorTypeAuth, "embedding provider is not configured", false, nil)
	}
	return p.embedder, nil
}

// Options tunes provider call behavior.
type Options struct {
	// Limiter paces every provider call. Nil disables pacing.
	Limiter *llm.RateLimiter
	// MaxRetries for retryable provider errors.
	MaxRetries int
	// Metrics records provider calls. Nil disables recording.
	Metrics *metrics.Metrics
	// Breaker stops provider calls during an outage. Nil disables it.
	// It is reset whenever the providers are replaced.
	Breaker *llm.CircuitBreaker
}

type client struct {
	providers   *Providers
	limiter     *llm.RateLimiter
	breaker     *llm.CircuitBreaker
	retryConfig *retry.Config
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewClient creates a Client over the given providers.
func NewClient(providers *Providers, opts Options, logger *zap.Logger) Client {
	logger = logger.Named("classifier")

	cfg := retry.ProviderConfig(opts.MaxRetries)
	cfg.OnRetry = func(attempt int, err error) {
		logger.Warn("Retrying provider call",
			zap.Int("attempt", attempt),
			zap.String("error", logging.SanitizeError(err)))
	}

	if opts.Breaker != nil {
		providers.mu.Lock()
		providers.onSet = opts.Breaker.Reset
		providers.mu.Unlock()
	}

	return &client{
		providers:   providers,
		limiter:     opts.Limiter,
		breaker:     opts.Breaker,
		retryConfig: cfg,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

var _ Client = (*client)(nil)

// withChat runs fn against the active chat client with pacing, retries and metrics.
func withChat[T any](ctx context.Context, c *client, operation string, fn func(chat llm.ChatClient) (T, error)) (T, error) {
	var zero T
	chat, err := c.providers.Chat()
	if err != nil {
		return zero, err
	}

	if err := c.breaker.Allow(); err != nil {
		return zero, err
	}

	start := time.Now()
	result, err := retry.DoIfRetryableWithResult(ctx, c.retryConfig, func() (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, err
		}
		return fn(chat)
	})
	c.breaker.Record(err)
	c.metrics.RecordProviderCall(operation, chat.Provider(), start, err)
	return result, err
}

// Embed implements Client.
func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text", "text is required")
	}

	embedder, err := c.providers.Embedder()
	if err != nil {
		return nil, err
	}

	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	start := time.Now()
	vec, err := retry.DoIfRetryableWithResult(ctx, c.retryConfig, func() ([]float32, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return embedder.CreateEmbedding(ctx, text)
	})
	c.breaker.Record(err)
	c.metrics.RecordProviderCall("embed", embedder.Provider(), start, err)
	if err != nil {
		c.logger.Error("Embedding failed", zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}
	return vec, nil
}

// Classify implements Client.
func (c *client) Classify(ctx context.Context, text string, cc ClassifyContext) (*models.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text", "text is required")
	}

	prompt := prompts.BuildClassificationPrompt(prompts.ClassificationInput{
		Text:     text,
		Source:   cc.Source,
		NPSScore: cc.NPSScore,
		Profile:  cc.Profile,
	})

	result, err := withChat(ctx, c, "classify", func(chat llm.ChatClient) (*models.Classification, error) {
		response, err := chat.GenerateResponse(ctx, prompt, prompts.ClassificationSystemMessage,
			prompts.ClassificationTemperature, prompts.ClassificationMaxTokens)
		if err != nil {
			return nil, err
		}
		raw, err := llm.ParseJSONResponse[rawClassification](response)
		if err != nil {
			return nil, err
		}
		return normalizeClassification(raw)
	})
	if err != nil {
		c.logger.Warn("Classification failed",
			zap.String("text", logging.TruncateText(text, logging.MaxTextLogLength)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	c.logger.Debug("Classified feedback",
		zap.String("sentiment", string(result.Sentiment)),
		zap.Strings("topics", result.Topics),
		zap.String("urgency", string(result.Urgency)),
		zap.String("intent", string(result.Intent)))
	return result, nil
}

// Answer implements Client.
func (c *client) Answer(ctx context.Context, question string, items []*models.FeedbackItem) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", apperrors.NewValidationError("question", "question is required")
	}

	prompt := prompts.BuildAnswerPrompt(question, items, "")

	answer, err := withChat(ctx, c, "answer", func(chat llm.ChatClient) (string, error) {
		out, err := chat.GenerateResponse(ctx, prompt, prompts.AnswerSystemMessage,
			prompts.AnswerTemperature, prompts.AnswerMaxTokens)
		if err != nil {
			return "", err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return "", llm.NewError(llm.ErrorTypeResponse, "empty answer", true, nil)
		}
		return out, nil
	})
	if err != nil {
		c.logger.Error("Answer failed", zap.String("error", logging.SanitizeError(err)))
		return "", err
	}
	return answer, nil
}

type criteriaVerdict struct {
	Matches json.RawMessage `json:"matches"`
	Reason  string          `json:"reason"`
}

// MatchCriteria implements Client.
func (c *client) MatchCriteria(ctx context.Context, criteria string, item *models.FeedbackItem) (bool, string, error) {
	if strings.TrimSpace(criteria) == "" {
		return false, "", apperrors.NewValidationError("criteria", "criteria is required")
	}

	prompt := prompts.BuildCriteriaPrompt(criteria, item.Text)

	verdict, err := withChat(ctx, c, "match_criteria", func(chat llm.ChatClient) (criteriaVerdict, error) {
		out, err := chat.GenerateResponse(ctx, prompt, "", prompts.CriteriaTemperature, prompts.CriteriaMaxTokens)
		if err != nil {
			return criteriaVerdict{}, err
		}
		return llm.ParseJSONResponse[criteriaVerdict](out)
	})
	if err != nil {
		return false, "", err
	}
	return jsonutil.FlexibleBoolValue(verdict.Matches), strings.TrimSpace(verdict.Reason), nil
}
