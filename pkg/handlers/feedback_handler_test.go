package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

func setupFeedbackHandler() (*http.ServeMux, *mockIngestionService, *mockQueryService) {
	ingestion := &mockIngestionService{}
	query := &mockQueryService{}
	mux := http.NewServeMux()
	NewFeedbackHandler(ingestion, query, zap.NewNop()).RegisterRoutes(mux)
	return mux, ingestion, query
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestFeedbackHandler_Ingest(t *testing.T) {
	mux, ingestion, _ := setupFeedbackHandler()
	item := &models.FeedbackItem{ID: uuid.New(), Text: "Love the new dashboard", Source: models.SourceNPS}
	ingestion.result = &services.IngestResult{Item: item}

	rec := serve(mux, http.MethodPost, "/ingest", `{"text":"Love the new dashboard","source":"nps","nps_score":9,"user_id":"u1"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp IngestResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, item.ID, resp.Item.ID)
	assert.False(t, resp.Partial)
	assert.Empty(t, resp.Warnings)

	require.NotNil(t, ingestion.lastRequest.NPSScore)
	assert.Equal(t, 9, *ingestion.lastRequest.NPSScore)
	assert.Equal(t, "u1", *ingestion.lastRequest.UserID)
}

func TestFeedbackHandler_IngestPartial(t *testing.T) {
	mux, ingestion, _ := setupFeedbackHandler()
	ingestion.result = &services.IngestResult{
		Item:                &models.FeedbackItem{ID: uuid.New(), Text: "Slow", Source: models.SourceZendesk},
		ClassificationError: llm.NewError(llm.ErrorTypeEndpoint, "connection refused", true, nil),
	}

	rec := serve(mux, http.MethodPost, "/ingest", `{"text":"Slow","source":"zendesk"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp IngestResponse
	decodeData(t, rec, &resp)
	assert.True(t, resp.Partial)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "classification failed")
	assert.Equal(t, KindProvider, resp.ClassificationErrorKind)
	assert.Empty(t, resp.EmbeddingErrorKind)
}

func TestFeedbackHandler_IngestPartialReportsEachStageKind(t *testing.T) {
	mux, ingestion, _ := setupFeedbackHandler()
	ingestion.result = &services.IngestResult{
		Item:                &models.FeedbackItem{ID: uuid.New(), Text: "Slow", Source: models.SourceZendesk},
		ClassificationError: fmt.Errorf("%w: sentiment missing", apperrors.ErrInvalidClassification),
		EmbeddingError:      llm.NewError(llm.ErrorTypeAuth, "invalid api key", false, nil),
	}

	rec := serve(mux, http.MethodPost, "/ingest", `{"text":"Slow","source":"zendesk"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp IngestResponse
	decodeData(t, rec, &resp)
	assert.True(t, resp.Partial)
	assert.Len(t, resp.Warnings, 2)
	assert.Equal(t, KindInvalidClassification, resp.ClassificationErrorKind)
	assert.Equal(t, KindProvider, resp.EmbeddingErrorKind)
}

func TestFeedbackHandler_IngestErrors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		mux, _, _ := setupFeedbackHandler()
		rec := serve(mux, http.MethodPost, "/ingest", `{"text":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		mux, ingestion, _ := setupFeedbackHandler()
		ingestion.err = apperrors.NewValidationError("text", "text is required")
		rec := serve(mux, http.MethodPost, "/ingest", `{"text":"","source":"nps"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		kind, message := decodeError(t, rec)
		assert.Equal(t, KindValidation, kind)
		assert.Contains(t, message, "text is required")
	})

	t.Run("storage failure", func(t *testing.T) {
		mux, ingestion, _ := setupFeedbackHandler()
		ingestion.err = errors.New("disk I/O error")
		rec := serve(mux, http.MethodPost, "/ingest", `{"text":"x","source":"nps"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		kind, message := decodeError(t, rec)
		assert.Equal(t, KindInternal, kind)
		assert.NotContains(t, message, "disk")
	})
}

func TestFeedbackHandler_UpsertProfile(t *testing.T) {
	mux, ingestion, _ := setupFeedbackHandler()

	rec := serve(mux, http.MethodPost, "/profiles", `{"user_id":"u1","subscription_type":"pro","mrr":250}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 250.0, ingestion.lastProfile.MRRValue())

	rec = serve(mux, http.MethodPost, "/profiles", `{"user_id":"u1","subscription_type":"platinum"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackHandler_Get(t *testing.T) {
	mux, _, query := setupFeedbackHandler()
	query.item = &models.FeedbackItem{ID: uuid.New(), Text: "ok", Source: models.SourceEmail}

	rec := serve(mux, http.MethodGet, "/feedback/"+query.item.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.FeedbackItem
	decodeData(t, rec, &got)
	assert.Equal(t, query.item.ID, got.ID)

	rec = serve(mux, http.MethodGet, "/feedback/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	kind, _ := decodeError(t, rec)
	assert.Equal(t, KindNotFound, kind)

	rec = serve(mux, http.MethodGet, "/feedback/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackHandler_UpdateClassification(t *testing.T) {
	mux, _, query := setupFeedbackHandler()
	query.item = &models.FeedbackItem{ID: uuid.New(), Text: "ok", Source: models.SourceNPS}
	path := "/feedback/" + query.item.ID.String() + "/classification"

	rec := serve(mux, http.MethodPut, path,
		`{"sentiment":"negative","topics":["billing"],"urgency":"high","intent":"churn_risk","summary":"Double charged"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.IntentChurnRisk, query.lastClass.Intent)

	rec = serve(mux, http.MethodPut, path,
		`{"sentiment":"furious","topics":["billing"],"urgency":"high","intent":"churn_risk"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	kind, _ := decodeError(t, rec)
	assert.Equal(t, KindInvalidClassification, kind)
}

func TestFeedbackHandler_Reclassify(t *testing.T) {
	mux, _, query := setupFeedbackHandler()
	query.reclassify = &services.ReclassifyResult{Processed: 3, Updated: 2, Failed: 1}

	rec := serve(mux, http.MethodPost, "/reclassify", `{"only_unclassified":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got services.ReclassifyResult
	decodeData(t, rec, &got)
	assert.Equal(t, 2, got.Updated)
	assert.True(t, query.lastOnly)

	rec = serve(mux, http.MethodPost, "/reclassify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, query.lastOnly)
}
