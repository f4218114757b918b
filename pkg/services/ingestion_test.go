package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/classifier"
	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/ranking"
	"github.com/ekaya-inc/ekaya-feedback/pkg/repositories"
	"github.com/ekaya-inc/ekaya-feedback/pkg/testhelpers"
)

// newTestRepo returns a FeedbackRepository over a fresh SQLite file.
func newTestRepo(t *testing.T) repositories.FeedbackRepository {
	t.Helper()
	db := testhelpers.NewSQLiteDB(t)
	return repositories.NewSQLiteFeedbackRepository(db, ranking.NewChromemRanker(zap.NewNop()), zap.NewNop())
}

// failingRepo fails every write; reads fall through to the embedded repository.
type failingRepo struct {
	repositories.FeedbackRepository
	err error
}

func (r *failingRepo) Insert(ctx context.Context, item *models.FeedbackItem) error {
	return r.err
}

func (r *failingRepo) UpsertProfile(ctx context.Context, profile *models.UserProfile) error {
	return r.err
}

func providerError() error {
	return llm.NewError(llm.ErrorTypeEndpoint, "connection refused", true, errors.New("dial tcp: refused"))
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestIngest_ClassifiesEmbedsAndStores(t *testing.T) {
	repo := newTestRepo(t)
	mock := classifier.NewMockClient()
	svc := NewIngestionService(repo, mock, nil, zap.NewNop())
	ctx := context.Background()

	res, err := svc.Ingest(ctx, IngestRequest{
		Text:     "  The export button is broken  ",
		Source:   models.SourceNPS,
		NPSScore: intPtr(3),
		UserID:   strPtr("u1"),
		Profile:  &models.UserProfile{SubscriptionType: models.SubscriptionPro, MRR: models.Float64(250)},
	})
	require.NoError(t, err)
	assert.False(t, res.Partial())
	assert.Empty(t, res.Warnings())
	assert.Equal(t, "The export button is broken", res.Item.Text)
	assert.Nil(t, res.Item.Embedding, "embedding is not returned to callers")
	require.NotNil(t, res.Item.Classification)

	embed, classify, _, _ := mock.Calls()
	assert.Equal(t, 1, embed)
	assert.Equal(t, 1, classify)

	stored, err := repo.GetByID(ctx, res.Item.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasEmbedding())
	require.NotNil(t, stored.UserProfile)
	assert.Equal(t, "u1", stored.UserProfile.UserID)
	assert.Equal(t, 250.0, stored.UserProfile.MRRValue())
}

func TestIngest_ProfileReachesClassifier(t *testing.T) {
	repo := newTestRepo(t)
	mock := classifier.NewMockClient()
	var seen classifier.ClassifyContext
	mock.ClassifyFunc = func(ctx context.Context, text string, cc classifier.ClassifyContext) (*models.Classification, error) {
		seen = cc
		return &models.Classification{
			Sentiment: models.SentimentNegative,
			Topics:    []string{"pricing"},
			Urgency:   models.UrgencyHigh,
			Intent:    models.IntentChurnRisk,
		}, nil
	}
	svc := NewIngestionService(repo, mock, nil, zap.NewNop())

	_, err := svc.Ingest(context.Background(), IngestRequest{
		Text:    "Too expensive, cancelling",
		Source:  models.SourceEmail,
		Profile: &models.UserProfile{UserID: "acme", MRR: models.Float64(900), CompanyName: "Acme"},
	})
	require.NoError(t, err)
	require.NotNil(t, seen.Profile)
	assert.Equal(t, "Acme", seen.Profile.CompanyName)
	assert.Equal(t, models.SourceEmail, seen.Source)
}

func TestIngest_ValidationFailsBeforeProviderCall(t *testing.T) {
	mock := classifier.NewMockClient()
	svc := NewIngestionService(newTestRepo(t), mock, nil, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name string
		req  IngestRequest
	}{
		{"empty text", IngestRequest{Text: "   ", Source: models.SourceNPS}},
		{"unknown source", IngestRequest{Text: "hi", Source: "fax"}},
		{"nps out of range", IngestRequest{Text: "hi", Source: models.SourceNPS, NPSScore: intPtr(11)}},
		{"negative mrr", IngestRequest{Text: "hi", Source: models.SourceNPS, Profile: &models.UserProfile{UserID: "u", MRR: models.Float64(-1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}

	embed, classify, _, _ := mock.Calls()
	assert.Zero(t, embed)
	assert.Zero(t, classify)
}

func TestIngest_ProviderFailureStoresUnclassified(t *testing.T) {
	repo := newTestRepo(t)
	mock := classifier.NewMockClient()
	mock.ClassifyFunc = func(ctx context.Context, text string, cc classifier.ClassifyContext) (*models.Classification, error) {
		return nil, providerError()
	}
	mock.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, providerError()
	}
	svc := NewIngestionService(repo, mock, nil, zap.NewNop())

	res, err := svc.Ingest(context.Background(), IngestRequest{Text: "App is slow", Source: models.SourceIntercom})
	require.NoError(t, err)
	assert.True(t, res.Partial())
	assert.Len(t, res.Warnings(), 2)

	var llmErr *llm.Error
	assert.True(t, errors.As(res.ClassificationError, &llmErr))

	stored, err := repo.GetByID(context.Background(), res.Item.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Classification)
	assert.False(t, stored.HasEmbedding())
}

func TestIngest_InvalidClassificationNeverStored(t *testing.T) {
	repo := newTestRepo(t)
	mock := classifier.NewMockClient()
	mock.ClassifyFunc = func(ctx context.Context, text string, cc classifier.ClassifyContext) (*models.Classification, error) {
		return nil, apperrors.InvalidClassification("sentiment %q", "ecstatic")
	}
	svc := NewIngestionService(repo, mock, nil, zap.NewNop())

	res, err := svc.Ingest(context.Background(), IngestRequest{Text: "Love it", Source: models.SourceNPS})
	require.NoError(t, err)
	assert.ErrorIs(t, res.ClassificationError, apperrors.ErrInvalidClassification)

	stored, err := repo.GetByID(context.Background(), res.Item.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Classification)
	assert.True(t, stored.HasEmbedding())
}

func TestIngest_SkipClassification(t *testing.T) {
	mock := classifier.NewMockClient()
	svc := NewIngestionService(newTestRepo(t), mock, nil, zap.NewNop())

	res, err := svc.Ingest(context.Background(), IngestRequest{Text: "hello", Source: models.SourceOther, SkipClassification: true})
	require.NoError(t, err)
	assert.False(t, res.Partial())
	assert.Nil(t, res.Item.Classification)

	embed, classify, _, _ := mock.Calls()
	assert.Zero(t, embed)
	assert.Zero(t, classify)
}

func TestIngest_StorageFailureIsError(t *testing.T) {
	repo := &failingRepo{FeedbackRepository: newTestRepo(t), err: errors.New("disk full")}
	svc := NewIngestionService(repo, classifier.NewMockClient(), nil, zap.NewNop())

	_, err := svc.Ingest(context.Background(), IngestRequest{Text: "hello", Source: models.SourceOther})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestIngest_PreservesCreatedAt(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewIngestionService(repo, classifier.NewMockClient(), nil, zap.NewNop())
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := svc.Ingest(context.Background(), IngestRequest{Text: "old", Source: models.SourceNPS, CreatedAt: &created})
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), res.Item.ID)
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(created))
}

func TestUpsertProfile_Validates(t *testing.T) {
	svc := NewIngestionService(newTestRepo(t), classifier.NewMockClient(), nil, zap.NewNop())

	err := svc.UpsertProfile(context.Background(), nil)
	assert.True(t, apperrors.IsValidation(err))

	err = svc.UpsertProfile(context.Background(), &models.UserProfile{UserID: "u", SubscriptionType: "platinum"})
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, svc.UpsertProfile(context.Background(), &models.UserProfile{UserID: "u", SubscriptionType: models.SubscriptionFree}))
}
