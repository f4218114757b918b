package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/classifier"
	"github.com/ekaya-inc/ekaya-feedback/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedback/pkg/metrics"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/repositories"
)

// IngestRequest is one feedback item to store, plus optional profile data.
type IngestRequest struct {
	Text           string                `json:"text"`
	Source         models.FeedbackSource `json:"source"`
	NPSScore       *int                  `json:"nps_score,omitempty"`
	TicketID       *string               `json:"ticket_id,omitempty"`
	TicketPriority *string               `json:"ticket_priority,omitempty"`
	UserID         *string               `json:"user_id,omitempty"`
	CreatedAt      *time.Time            `json:"created_at,omitempty"`

	// Profile is upserted before classification. Its UserID defaults to UserID.
	Profile *models.UserProfile `json:"user_profile,omitempty"`

	SkipClassification bool `json:"skip_classification,omitempty"`
}

// IngestResult reports the stored item and any non-fatal provider failures.
type IngestResult struct {
	Item                *models.FeedbackItem
	ClassificationError error
	EmbeddingError      error
}

// Partial returns true if the item was stored without a classification or embedding
// because the provider failed.
func (r *IngestResult) Partial() bool {
	return r.ClassificationError != nil || r.EmbeddingError != nil
}

// Warnings returns sanitized, user-facing descriptions of the provider failures.
func (r *IngestResult) Warnings() []string {
	var warnings []string
	if r.ClassificationError != nil {
		warnings = append(warnings, "classification failed: "+logging.SanitizeError(r.ClassificationError))
	}
	if r.EmbeddingError != nil {
		warnings = append(warnings, "embedding failed: "+logging.SanitizeError(r.EmbeddingError))
	}
	return warnings
}

// IngestionService validates, classifies, embeds and stores feedback.
type IngestionService interface {
	// Ingest stores one item. Provider failures are reported in the result;
	// only validation and storage failures return an error.
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)

	UpsertProfile(ctx context.Context, profile *models.UserProfile) error
}

type ingestionService struct {
	repo       repositories.FeedbackRepository
	classifier classifier.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewIngestionService creates an IngestionService. metrics may be nil.
func NewIngestionService(repo repositories.FeedbackRepository, client classifier.Client, m *metrics.Metrics, logger *zap.Logger) IngestionService {
	return &ingestionService{
		repo:       repo,
		classifier: client,
		metrics:    m,
		logger:     logger.Named("ingestion-service"),
	}
}

var _ IngestionService = (*ingestionService)(nil)

func (s *ingestionService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	item := &models.FeedbackItem{
		Text:           strings.TrimSpace(req.Text),
		Source:         req.Source,
		NPSScore:       req.NPSScore,
		TicketID:       req.TicketID,
		TicketPriority: req.TicketPriority,
		UserID:         nonEmpty(req.UserID),
	}
	if req.CreatedAt != nil {
		item.CreatedAt = req.CreatedAt.UTC()
	}

	profile := req.Profile
	if profile != nil {
		p := *profile
		if p.UserID == "" && item.UserID != nil {
			p.UserID = *item.UserID
		}
		profile = &p
		if item.UserID == nil && p.UserID != "" {
			item.UserID = &p.UserID
		}
	}

	if err := item.Validate(); err != nil {
		s.metrics.RecordIngest(string(req.Source), "invalid")
		return nil, err
	}
	if profile != nil {
		if err := profile.Validate(); err != nil {
			s.metrics.RecordIngest(string(req.Source), "invalid")
			return nil, err
		}
		if err := s.repo.UpsertProfile(ctx, profile); err != nil {
			s.metrics.RecordIngest(string(item.Source), "failed")
			return nil, fmt.Errorf("failed to upsert profile: %w", err)
		}
	}

	result := &IngestResult{Item: item}
	if !req.SkipClassification {
		cc := classifier.ClassifyContext{
			Source:   item.Source,
			NPSScore: item.NPSScore,
			Profile:  s.profileFor(ctx, item.UserID, profile),
		}

		c, err := s.classifier.Classify(ctx, item.Text, cc)
		if err != nil {
			result.ClassificationError = err
		} else {
			item.Classification = c
		}

		emb, err := s.classifier.Embed(ctx, item.Text)
		if err != nil {
			result.EmbeddingError = err
		} else {
			item.Embedding = emb
		}
	}

	if err := s.repo.Insert(ctx, item); err != nil {
		s.metrics.RecordIngest(string(item.Source), "failed")
		s.logger.Error("Failed to store feedback",
			zap.String("source", string(item.Source)),
			zap.Error(err))
		return nil, err
	}

	outcome := "classified"
	switch {
	case req.SkipClassification:
		outcome = "unclassified"
	case result.Partial():
		outcome = "partial"
		s.logger.Warn("Stored feedback with provider failures",
			zap.String("feedback_id", item.ID.String()),
			zap.Strings("warnings", result.Warnings()))
	}
	s.metrics.RecordIngest(string(item.Source), outcome)

	// The stored embedding is not part of the API surface.
	item.Embedding = nil
	return result, nil
}

// profileFor returns the profile to give the classifier: the one supplied
// with the request, else the stored one, else nil.
func (s *ingestionService) profileFor(ctx context.Context, userID *string, supplied *models.UserProfile) *models.UserProfile {
	if userID == nil {
		return supplied
	}
	stored, err := s.repo.GetProfile(ctx, *userID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("Failed to load profile for classification",
				zap.String("user_id", *userID),
				zap.Error(err))
		}
		return supplied
	}
	return stored
}

func (s *ingestionService) UpsertProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile == nil {
		return apperrors.NewValidationError("user_profile", "profile is required")
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		s.logger.Error("Failed to upsert profile",
			zap.String("user_id", profile.UserID),
			zap.Error(err))
		return err
	}
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
