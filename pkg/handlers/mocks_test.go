package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

// mockIngestionService records the last request and returns canned results.
type mockIngestionService struct {
	result      *services.IngestResult
	err         error
	lastRequest services.IngestRequest
	lastProfile *models.UserProfile
}

func (m *mockIngestionService) Ingest(ctx context.Context, req services.IngestRequest) (*services.IngestResult, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockIngestionService) UpsertProfile(ctx context.Context, profile *models.UserProfile) error {
	m.lastProfile = profile
	if m.err != nil {
		return m.err
	}
	return profile.Validate()
}

// mockQueryService embeds the interface so tests only stub what they call.
type mockQueryService struct {
	services.QueryService

	item        *models.FeedbackItem
	search      *services.SearchResult
	ask         *services.AskResult
	summary     *services.TopicSummary
	custom      *services.CustomSearchResult
	stats       *models.Stats
	volume      *models.VolumeReport
	reclassify  *services.ReclassifyResult
	err         error
	lastSearch  services.SearchRequest
	lastFilters models.FeedbackFilters
	lastAlert   services.AlertKind
	lastAlertRq services.AlertRequest
	lastDays    int
	lastTopic   string
	lastGrain   models.Grain
	lastOnly    bool
	lastClass   models.Classification
}

func (m *mockQueryService) Search(ctx context.Context, req services.SearchRequest) (*services.SearchResult, error) {
	m.lastSearch = req
	return m.search, m.err
}

func (m *mockQueryService) GetFeedback(ctx context.Context, id uuid.UUID) (*models.FeedbackItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.item == nil || m.item.ID != id {
		return nil, apperrors.ErrNotFound
	}
	return m.item, nil
}

func (m *mockQueryService) Alert(ctx context.Context, kind services.AlertKind, req services.AlertRequest) (*services.SearchResult, error) {
	m.lastAlert = kind
	m.lastAlertRq = req
	return m.search, m.err
}

func (m *mockQueryService) Ask(ctx context.Context, question string, filters models.FeedbackFilters) (*services.AskResult, error) {
	m.lastFilters = filters
	if question == "" {
		return nil, apperrors.NewValidationError("question", "question is required")
	}
	return m.ask, m.err
}

func (m *mockQueryService) TopicSummary(ctx context.Context, topic string, days int) (*services.TopicSummary, error) {
	m.lastTopic = topic
	m.lastDays = days
	return m.summary, m.err
}

func (m *mockQueryService) CustomSearch(ctx context.Context, req services.CustomSearchRequest) (*services.CustomSearchResult, error) {
	return m.custom, m.err
}

func (m *mockQueryService) Stats(ctx context.Context, days int) (*models.Stats, error) {
	m.lastDays = days
	return m.stats, m.err
}

func (m *mockQueryService) Volume(ctx context.Context, grain models.Grain, daysBack int, filters models.FeedbackFilters) (*models.VolumeReport, error) {
	m.lastGrain = grain
	m.lastDays = daysBack
	m.lastFilters = filters
	return m.volume, m.err
}

func (m *mockQueryService) UpdateClassification(ctx context.Context, id uuid.UUID, c models.Classification) (*models.FeedbackItem, error) {
	m.lastClass = c
	if err := c.Validate(); err != nil {
		return nil, apperrors.InvalidClassification("%s", err.Error())
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.item, nil
}

func (m *mockQueryService) Reclassify(ctx context.Context, onlyUnclassified bool) (*services.ReclassifyResult, error) {
	m.lastOnly = onlyUnclassified
	return m.reclassify, m.err
}

// mockImportService keeps jobs in memory.
type mockImportService struct {
	services.ImportService

	jobs        map[string]models.ImportJob
	preview     *services.PreviewResult
	err         error
	lastRequest services.ImportRequest
	lastLimit   int
}

func newMockImportService() *mockImportService {
	return &mockImportService{jobs: map[string]models.ImportJob{}}
}

func (m *mockImportService) Preview(data []byte, limit int) (*services.PreviewResult, error) {
	m.lastLimit = limit
	return m.preview, m.err
}

func (m *mockImportService) StartImport(ctx context.Context, req services.ImportRequest) (models.ImportJob, error) {
	m.lastRequest = req
	if m.err != nil {
		return models.ImportJob{}, m.err
	}
	job := models.ImportJob{ID: "job-1", Kind: req.Kind, Status: models.JobStatusPending}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *mockImportService) GetJob(id string) (models.ImportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return models.ImportJob{}, apperrors.ErrNotFound
	}
	return job, nil
}

func (m *mockImportService) ListJobs() []models.ImportJob {
	out := make([]models.ImportJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}

func (m *mockImportService) CancelJob(id string) (models.ImportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return models.ImportJob{}, apperrors.ErrNotFound
	}
	if job.Status.Terminal() {
		return models.ImportJob{}, apperrors.ErrConflict
	}
	job.Status = models.JobStatusCancelled
	m.jobs[id] = job
	return job, nil
}

// mockSettingsService returns a fixed view.
type mockSettingsService struct {
	view      models.SettingsView
	test      *llm.TestResult
	err       error
	lastPatch models.SettingsUpdate
}

func (m *mockSettingsService) Get() models.SettingsView { return m.view }

func (m *mockSettingsService) Update(ctx context.Context, patch models.SettingsUpdate) (models.SettingsView, error) {
	m.lastPatch = patch
	if m.err != nil {
		return models.SettingsView{}, m.err
	}
	if patch.ClassificationModel != nil {
		m.view.ClassificationModel = *patch.ClassificationModel
	}
	return m.view, nil
}

func (m *mockSettingsService) TestAPIKey(ctx context.Context, patch models.SettingsUpdate) (*llm.TestResult, error) {
	m.lastPatch = patch
	return m.test, m.err
}

func (m *mockSettingsService) Current() models.ProviderSettings { return m.view.ProviderSettings }
