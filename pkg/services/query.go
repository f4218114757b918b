package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/classifier"
	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/prompts"
	"github.com/ekaya-inc/ekaya-feedback/pkg/repositories"
)

const (
	// DefaultSearchDays is the recency window applied by the API surfaces when none is given.
	DefaultSearchDays = 30

	DefaultChurnMinMRR = 100.0
	DefaultChurnDays   = 30
	DefaultUrgentDays  = 7
	DefaultUpsellDays  = 30
	DefaultNPSDays     = 30

	// AskCandidateLimit is how many items are retrieved for a question.
	AskCandidateLimit = 30
	// TopicSummaryLimit is how many recent items feed a topic summary.
	TopicSummaryLimit = 50
	// ReclassifyBatchSize is the page size used while reclassifying.
	ReclassifyBatchSize = 100

	DefaultVolumeDays = 30

	// NoFeedbackAnswer is returned by Ask when nothing matches.
	NoFeedbackAnswer = "No matching feedback found for your query."
)

// DefaultUpsellSubscriptions are the plans checked for upsell opportunities.
var DefaultUpsellSubscriptions = []models.SubscriptionType{models.SubscriptionFree, models.SubscriptionStarter}

// AlertKind names a canned alert query.
type AlertKind string

const (
	AlertChurnRisks AlertKind = "churn_risks"
	AlertUrgent     AlertKind = "urgent"
	AlertUpsell     AlertKind = "upsell"
	AlertDetractors AlertKind = "detractors"
	AlertPromoters  AlertKind = "promoters"
)

// AllAlertKinds lists every alert kind.
var AllAlertKinds = []AlertKind{AlertChurnRisks, AlertUrgent, AlertUpsell, AlertDetractors, AlertPromoters}

// SearchRequest is a filtered search. A non-empty Query switches to semantic ranking.
type SearchRequest struct {
	Query   string                 `json:"query,omitempty"`
	Filters models.FeedbackFilters `json:"filters"`
}

// SearchResult is one page of matching items.
type SearchResult struct {
	Items    []*models.FeedbackItem `json:"items"`
	Total    int                    `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
	Semantic bool                   `json:"semantic"`
}

// AlertRequest holds the optional parameters shared by alert queries.
// Zero values select each alert's defaults.
type AlertRequest struct {
	Days              int
	MinMRR            *float64
	SubscriptionTypes []models.SubscriptionType
	Limit             int
}

// AskResult is an answer plus the items it was grounded on.
type AskResult struct {
	Question     string                 `json:"question"`
	Answer       string                 `json:"answer"`
	SourcesCount int                    `json:"sources_count"`
	Sources      []*models.FeedbackItem `json:"sources,omitempty"`
}

// TopicSummary is the AI summary of one topic.
type TopicSummary struct {
	Topic     string `json:"topic"`
	Days      int    `json:"days"`
	ItemCount int    `json:"item_count"`
	Summary   string `json:"summary"`
}

// CustomSearchRequest finds items matching free-text criteria.
type CustomSearchRequest struct {
	Criteria string                 `json:"criteria"`
	Filters  models.FeedbackFilters `json:"filters"`
	Limit    int                    `json:"limit,omitempty"`
	// Verify asks the model to confirm each candidate against the criteria.
	Verify bool `json:"verify"`
}

// CriteriaMatch is one item returned by a custom search.
type CriteriaMatch struct {
	Feedback *models.FeedbackItem `json:"feedback"`
	Matches  bool                 `json:"matches"`
	Reason   string               `json:"reason,omitempty"`
}

// CustomSearchResult lists the matching items for criteria.
type CustomSearchResult struct {
	Criteria string          `json:"criteria"`
	Verified bool            `json:"verified"`
	Matches  []CriteriaMatch `json:"matches"`
}

// ReclassifyResult summarizes a reclassification run.
type ReclassifyResult struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// QueryService answers questions about stored feedback.
type QueryService interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	GetFeedback(ctx context.Context, id uuid.UUID) (*models.FeedbackItem, error)

	// Alerts
	ChurnRisks(ctx context.Context, minMRR float64, days, limit int) (*SearchResult, error)
	UrgentItems(ctx context.Context, days int, subscriptionTypes []models.SubscriptionType, limit int) (*SearchResult, error)
	UpsellOpportunities(ctx context.Context, days int, subscriptionTypes []models.SubscriptionType, limit int) (*SearchResult, error)
	Detractors(ctx context.Context, days, limit int) (*SearchResult, error)
	Promoters(ctx context.Context, days, limit int) (*SearchResult, error)
	Alert(ctx context.Context, kind AlertKind, req AlertRequest) (*SearchResult, error)

	// AI
	Ask(ctx context.Context, question string, filters models.FeedbackFilters) (*AskResult, error)
	TopicSummary(ctx context.Context, topic string, days int) (*TopicSummary, error)
	CustomSearch(ctx context.Context, req CustomSearchRequest) (*CustomSearchResult, error)

	// Analytics
	Stats(ctx context.Context, days int) (*models.Stats, error)
	Volume(ctx context.Context, grain models.Grain, daysBack int, filters models.FeedbackFilters) (*models.VolumeReport, error)

	// Classification maintenance
	UpdateClassification(ctx context.Context, id uuid.UUID, c models.Classification) (*models.FeedbackItem, error)
	Reclassify(ctx context.Context, onlyUnclassified bool) (*ReclassifyResult, error)
}

type queryService struct {
	repo       repositories.FeedbackRepository
	classifier classifier.Client
	pool       *llm.WorkerPool
	logger     *zap.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(repo repositories.FeedbackRepository, client classifier.Client, logger *zap.Logger) QueryService {
	return &queryService{
		repo:       repo,
		classifier: client,
		pool:       llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), logger),
		logger:     logger.Named("query-service"),
	}
}

var _ QueryService = (*queryService)(nil)

func (s *queryService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	filters := req.Filters
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	limit, offset := filters.Page()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		items, total, err := s.repo.Query(ctx, filters)
		if err != nil {
			return nil, fmt.Errorf("failed to query feedback: %w", err)
		}
		return &SearchResult{Items: nonNilItems(items), Total: total, Limit: limit, Offset: offset}, nil
	}

	embedding, err := s.classifier.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	ranked, total, err := s.repo.SimilaritySearch(ctx, embedding, filters, limit+offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search feedback: %w", err)
	}

	result := &SearchResult{Total: total, Limit: limit, Offset: offset, Semantic: true}
	if offset < len(ranked) {
		result.Items = ranked[offset:]
	}
	result.Items = nonNilItems(result.Items)
	return result, nil
}

func (s *queryService) GetFeedback(ctx context.Context, id uuid.UUID) (*models.FeedbackItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Embedding = nil
	return item, nil
}

func (s *queryService) ChurnRisks(ctx context.Context, minMRR float64, days, limit int) (*SearchResult, error) {
	return s.Search(ctx, SearchRequest{Filters: models.FeedbackFilters{
		ChurnOrNegative: true,
		MinMRR:          &minMRR,
		Days:            orDefault(days, DefaultChurnDays),
		Limit:           limit,
	}})
}

func (s *queryService) UrgentItems(ctx context.Context, days int, subscriptionTypes []models.SubscriptionType, limit int) (*SearchResult, error) {
	return s.Search(ctx, SearchRequest{Filters: models.FeedbackFilters{
		Urgencies:         []models.Urgency{models.UrgencyHigh},
		SubscriptionTypes: subscriptionTypes,
		Days:              orDefault(days, DefaultUrgentDays),
		Limit:             limit,
	}})
}

func (s *queryService) UpsellOpportunities(ctx context.Context, days int, subscriptionTypes []models.SubscriptionType, limit int) (*SearchResult, error) {
	if len(subscriptionTypes) == 0 {
		subscriptionTypes = DefaultUpsellSubscriptions
	}
	return s.Search(ctx, SearchRequest{Filters: models.FeedbackFilters{
		Intents:           []models.Intent{models.IntentUpsellOpportunity},
		SubscriptionTypes: subscriptionTypes,
		Days:              orDefault(days, DefaultUpsellDays),
		Limit:             limit,
	}})
}

func (s *queryService) Detractors(ctx context.Context, days, limit int) (*SearchResult, error) {
	maxNPS := 6
	return s.Search(ctx, SearchRequest{Filters: models.FeedbackFilters{
		Sources: []models.FeedbackSource{models.SourceNPS},
		MaxNPS:  &maxNPS,
		Days:    orDefault(days, DefaultNPSDays),
		Limit:   limit,
	}})
}

func (s *queryService) Promoters(ctx context.Context, days, limit int) (*SearchResult, error) {
	minNPS := 9
	return s.Search(ctx, SearchRequest{Filters: models.FeedbackFilters{
		Sources: []models.FeedbackSource{models.SourceNPS},
		MinNPS:  &minNPS,
		Days:    orDefault(days, DefaultNPSDays),
		Limit:   limit,
	}})
}

func (s *queryService) Alert(ctx context.Context, kind AlertKind, req AlertRequest) (*SearchResult, error) {
	switch kind {
	case AlertChurnRisks:
		minMRR := DefaultChurnMinMRR
		if req.MinMRR != nil {
			minMRR = *req.MinMRR
		}
		return s.ChurnRisks(ctx, minMRR, req.Days, req.Limit)
	case AlertUrgent:
		return s.UrgentItems(ctx, req.Days, req.SubscriptionTypes, req.Limit)
	case AlertUpsell:
		return s.UpsellOpportunities(ctx, req.Days, req.SubscriptionTypes, req.Limit)
	case AlertDetractors:
		return s.Detractors(ctx, req.Days, req.Limit)
	case AlertPromoters:
		return s.Promoters(ctx, req.Days, req.Limit)
	default:
		return nil, apperrors.NewValidationError("alert_type", "unknown alert type %q", kind)
	}
}

func (s *queryService) Ask(ctx context.Context, question string, filters models.FeedbackFilters) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.NewValidationError("question", "question is required")
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	embedding, err := s.classifier.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	items, _, err := s.repo.SimilaritySearch(ctx, embedding, filters, AskCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search feedback: %w", err)
	}

	if len(items) == 0 {
		recent := filters
		recent.Limit = AskCandidateLimit
		recent.Offset = 0
		items, _, err = s.repo.Query(ctx, recent)
		if err != nil {
			return nil, fmt.Errorf("failed to query feedback: %w", err)
		}
	}

	result := &AskResult{Question: question}
	if len(items) == 0 {
		result.Answer = NoFeedbackAnswer
		return result, nil
	}

	answer, err := s.classifier.Answer(ctx, question, items)
	if err != nil {
		return nil, err
	}
	result.Answer = answer
	result.SourcesCount = len(items)
	result.Sources = items
	return result, nil
}

func (s *queryService) TopicSummary(ctx context.Context, topic string, days int) (*TopicSummary, error) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if !models.ValidTopic(topic) {
		return nil, apperrors.NewValidationError("topic", "invalid topic %q", topic)
	}
	days = orDefault(days, DefaultSearchDays)

	items, _, err := s.repo.Query(ctx, models.FeedbackFilters{
		Topics: []string{topic},
		Days:   days,
		Limit:  TopicSummaryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}

	summary := &TopicSummary{Topic: topic, Days: days, ItemCount: len(items)}
	if len(items) == 0 {
		summary.Summary = NoFeedbackAnswer
		return summary, nil
	}

	answer, err := s.classifier.Answer(ctx, prompts.TopicSummaryQuestion(topic), items)
	if err != nil {
		return nil, err
	}
	summary.Summary = answer
	return summary, nil
}

func (s *queryService) CustomSearch(ctx context.Context, req CustomSearchRequest) (*CustomSearchResult, error) {
	criteria := strings.TrimSpace(req.Criteria)
	if criteria == "" {
		return nil, apperrors.NewValidationError("criteria", "criteria is required")
	}
	filters := req.Filters
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	if limit > models.MaxSearchLimit {
		limit = models.MaxSearchLimit
	}

	embedding, err := s.classifier.Embed(ctx, criteria)
	if err != nil {
		return nil, err
	}
	candidates, _, err := s.repo.SimilaritySearch(ctx, embedding, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search feedback: %w", err)
	}

	result := &CustomSearchResult{Criteria: criteria, Verified: req.Verify, Matches: []CriteriaMatch{}}
	for _, item := range candidates {
		if !req.Verify {
			result.Matches = append(result.Matches, CriteriaMatch{Feedback: item, Matches: true})
			continue
		}
		ok, reason, err := s.classifier.MatchCriteria(ctx, criteria, item)
		if err != nil {
			return nil, err
		}
		if ok {
			result.Matches = append(result.Matches, CriteriaMatch{Feedback: item, Matches: true, Reason: reason})
		}
	}

	s.logger.Debug("Custom search",
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(result.Matches)),
		zap.Bool("verified", req.Verify))
	return result, nil
}

func (s *queryService) Stats(ctx context.Context, days int) (*models.Stats, error) {
	if days < 0 {
		return nil, apperrors.NewValidationError("days", "must be >= 0")
	}
	stats, err := s.repo.AggregateStats(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	return stats, nil
}

func (s *queryService) Volume(ctx context.Context, grain models.Grain, daysBack int, filters models.FeedbackFilters) (*models.VolumeReport, error) {
	if grain == "" {
		grain = models.GrainDay
	}
	if !grain.Valid() {
		return nil, apperrors.NewValidationError("grain", "invalid grain %q", grain)
	}
	if daysBack < 0 {
		return nil, apperrors.NewValidationError("days_back", "must be >= 0")
	}
	daysBack = orDefault(daysBack, DefaultVolumeDays)
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	buckets, err := s.repo.VolumeOverTime(ctx, grain, daysBack, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to compute volume: %w", err)
	}
	if buckets == nil {
		buckets = []models.VolumeBucket{}
	}
	return &models.VolumeReport{Grain: grain, DaysBack: daysBack, Buckets: buckets}, nil
}

func (s *queryService) UpdateClassification(ctx context.Context, id uuid.UUID, c models.Classification) (*models.FeedbackItem, error) {
	c.Confidence = models.ManualConfidence
	if err := c.Validate(); err != nil {
		return nil, apperrors.InvalidClassification("%s", err.Error())
	}
	if err := s.repo.UpdateClassification(ctx, id, &c); err != nil {
		return nil, err
	}

	s.logger.Info("Classification overridden",
		zap.String("feedback_id", id.String()),
		zap.String("sentiment", string(c.Sentiment)),
		zap.String("intent", string(c.Intent)))
	return s.GetFeedback(ctx, id)
}

func (s *queryService) Reclassify(ctx context.Context, onlyUnclassified bool) (*ReclassifyResult, error) {
	result := &ReclassifyResult{}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// Failed items stay unclassified and sort first, so skip past them.
		offset := result.Processed
		if onlyUnclassified {
			offset = result.Failed
		}
		batch, err := s.repo.ListForReclassification(ctx, onlyUnclassified, ReclassifyBatchSize, offset)
		if err != nil {
			return result, fmt.Errorf("failed to list feedback for reclassification: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		work := make([]llm.WorkItem[bool], len(batch))
		for i, item := range batch {
			work[i] = llm.WorkItem[bool]{
				ID: item.ID.String(),
				Execute: func(ctx context.Context) (bool, error) {
					return s.reclassifyOne(ctx, item), nil
				},
			}
		}
		for _, r := range llm.Process(ctx, s.pool, work, nil) {
			result.Processed++
			if r.Err == nil && r.Result {
				result.Updated++
			} else {
				result.Failed++
			}
		}

		if len(batch) < ReclassifyBatchSize {
			break
		}
	}

	s.logger.Info("Reclassification finished",
		zap.Bool("only_unclassified", onlyUnclassified),
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *queryService) reclassifyOne(ctx context.Context, item *models.FeedbackItem) bool {
	c, err := s.classifier.Classify(ctx, item.Text, classifier.ClassifyContext{
		Source:   item.Source,
		NPSScore: item.NPSScore,
		Profile:  item.UserProfile,
	})
	if err != nil {
		s.logger.Warn("Reclassification failed",
			zap.String("feedback_id", item.ID.String()),
			zap.Error(err))
		return false
	}

	// A failed embedding keeps the stored one.
	embedding, err := s.classifier.Embed(ctx, item.Text)
	if err != nil {
		s.logger.Warn("Embedding failed during reclassification",
			zap.String("feedback_id", item.ID.String()),
			zap.Error(err))
		embedding = nil
	}

	if err := s.repo.SetClassification(ctx, item.ID, c, embedding); err != nil {
		s.logger.Error("Failed to store reclassification",
			zap.String("feedback_id", item.ID.String()),
			zap.Error(err))
		return false
	}
	return true
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func nonNilItems(items []*models.FeedbackItem) []*models.FeedbackItem {
	if items == nil {
		return []*models.FeedbackItem{}
	}
	return items
}
