package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

func setupQueryHandler() (*http.ServeMux, *mockQueryService) {
	query := &mockQueryService{}
	mux := http.NewServeMux()
	NewQueryHandler(query, zap.NewNop()).RegisterRoutes(mux)
	NewAlertHandler(query, zap.NewNop()).RegisterRoutes(mux)
	return mux, query
}

func TestQueryHandler_Search(t *testing.T) {
	mux, query := setupQueryHandler()
	query.search = &services.SearchResult{Items: []*models.FeedbackItem{}, Total: 0, Limit: 20}

	rec := serve(mux, http.MethodGet, "/search?query=slow+exports&sentiments=negative&days=7", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "slow exports", query.lastSearch.Query)
	assert.Equal(t, []models.Sentiment{models.SentimentNegative}, query.lastSearch.Filters.Sentiments)
	assert.Equal(t, 7, query.lastSearch.Filters.Days)

	rec = serve(mux, http.MethodGet, "/search?topics=weather", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_SearchProviderError(t *testing.T) {
	mux, query := setupQueryHandler()
	query.err = llm.NewError(llm.ErrorTypeEndpoint, "connection refused", true, nil)

	rec := serve(mux, http.MethodGet, "/search?query=billing", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	kind, _ := decodeError(t, rec)
	assert.Equal(t, KindProvider, kind)
}

func TestQueryHandler_Ask(t *testing.T) {
	mux, query := setupQueryHandler()
	query.ask = &services.AskResult{Question: "What hurts?", Answer: "Exports", SourcesCount: 2}

	rec := serve(mux, http.MethodPost, "/ask", `{"question":"What hurts?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got services.AskResult
	decodeData(t, rec, &got)
	assert.Equal(t, "Exports", got.Answer)
	assert.Equal(t, services.DefaultSearchDays, query.lastFilters.Days, "default window without filters")

	rec = serve(mux, http.MethodPost, "/ask", `{"question":"What hurts?","filters":{"days":0,"sources":["zendesk"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, query.lastFilters.Days)
	assert.Equal(t, []models.FeedbackSource{models.SourceZendesk}, query.lastFilters.Sources)

	rec = serve(mux, http.MethodPost, "/ask", `{"question":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_TopicSummary(t *testing.T) {
	mux, query := setupQueryHandler()
	query.summary = &services.TopicSummary{Topic: "billing", Days: 14, ItemCount: 3, Summary: "Refunds are slow"}

	rec := serve(mux, http.MethodGet, "/topic/billing/summary?days=14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "billing", query.lastTopic)
	assert.Equal(t, 14, query.lastDays)

	rec = serve(mux, http.MethodGet, "/topic/billing/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.DefaultSearchDays, query.lastDays)
}

func TestQueryHandler_CustomSearch(t *testing.T) {
	mux, query := setupQueryHandler()
	query.custom = &services.CustomSearchResult{Criteria: "mentions SSO", Matches: []services.CriteriaMatch{}}

	rec := serve(mux, http.MethodPost, "/custom-search", `{"criteria":"mentions SSO","verify":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got services.CustomSearchResult
	decodeData(t, rec, &got)
	assert.Equal(t, "mentions SSO", got.Criteria)
}

func TestQueryHandler_Stats(t *testing.T) {
	mux, query := setupQueryHandler()
	query.stats = models.NewStats(7)
	query.stats.TotalCount = 4

	rec := serve(mux, http.MethodGet, "/stats?days=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Stats
	decodeData(t, rec, &got)
	assert.Equal(t, 4, got.TotalCount)
	assert.Equal(t, 7, query.lastDays)

	rec = serve(mux, http.MethodGet, "/stats?days=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_Volume(t *testing.T) {
	mux, query := setupQueryHandler()
	query.volume = &models.VolumeReport{Grain: models.GrainWeek, DaysBack: 60, Buckets: []models.VolumeBucket{}}

	rec := serve(mux, http.MethodGet, "/analytics/volume?grain=week&days_back=60&sources=nps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.GrainWeek, query.lastGrain)
	assert.Equal(t, 60, query.lastDays)
	assert.Zero(t, query.lastFilters.Days)
	assert.Equal(t, []models.FeedbackSource{models.SourceNPS}, query.lastFilters.Sources)
}

func TestAlertHandler(t *testing.T) {
	tests := []struct {
		path string
		kind services.AlertKind
	}{
		{"/alerts/churn-risks?min_mrr=250&days=14", services.AlertChurnRisks},
		{"/alerts/urgent?subscription_types=pro,enterprise", services.AlertUrgent},
		{"/alerts/upsell", services.AlertUpsell},
		{"/alerts/detractors?limit=5", services.AlertDetractors},
		{"/alerts/promoters", services.AlertPromoters},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			mux, query := setupQueryHandler()
			query.search = &services.SearchResult{Items: []*models.FeedbackItem{}}

			rec := serve(mux, http.MethodGet, tt.path, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, query.lastAlert)
		})
	}

	t.Run("parameters", func(t *testing.T) {
		mux, query := setupQueryHandler()
		query.search = &services.SearchResult{}

		serve(mux, http.MethodGet, "/alerts/churn-risks?min_mrr=250&days=14", "")
		require.NotNil(t, query.lastAlertRq.MinMRR)
		assert.Equal(t, 250.0, *query.lastAlertRq.MinMRR)
		assert.Equal(t, 14, query.lastAlertRq.Days)

		serve(mux, http.MethodGet, "/alerts/urgent?subscription_types=pro,enterprise", "")
		assert.Equal(t, []models.SubscriptionType{models.SubscriptionPro, models.SubscriptionEnterprise}, query.lastAlertRq.SubscriptionTypes)
		assert.Nil(t, query.lastAlertRq.MinMRR)
	})

	t.Run("bad parameter", func(t *testing.T) {
		mux, _ := setupQueryHandler()
		rec := serve(mux, http.MethodGet, "/alerts/detractors?limit=ten", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
