package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

// maxJSONBodyBytes bounds single-item request bodies.
const maxJSONBodyBytes = 1 << 20

// IngestResponse is returned by POST /ingest.
type IngestResponse struct {
	Item     *models.FeedbackItem `json:"item"`
	Partial  bool                 `json:"partial"`
	Warnings []string             `json:"warnings,omitempty"`

	// Error kinds of the failed provider stages, e.g. "provider_error".
	ClassificationErrorKind string `json:"classification_error_kind,omitempty"`
	EmbeddingErrorKind      string `json:"embedding_error_kind,omitempty"`
}

type reclassifyRequest struct {
	OnlyUnclassified bool `json:"only_unclassified"`
}

// FeedbackHandler handles single-item ingestion and classification maintenance.
type FeedbackHandler struct {
	ingestion services.IngestionService
	query     services.QueryService
	logger    *zap.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(ingestion services.IngestionService, query services.QueryService, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		ingestion: ingestion,
		query:     query,
		logger:    logger,
	}
}

// RegisterRoutes registers the feedback handler's routes on the given mux.
func (h *FeedbackHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /ingest", h.Ingest)
	mux.HandleFunc("POST /profiles", h.UpsertProfile)
	mux.HandleFunc("GET /feedback/{id}", h.Get)
	mux.HandleFunc("PUT /feedback/{id}/classification", h.UpdateClassification)
	mux.HandleFunc("POST /reclassify", h.Reclassify)
}

// Ingest handles POST /ingest
func (h *FeedbackHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req services.IngestRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	result, err := h.ingestion.Ingest(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "Ingest", err)
		return
	}

	resp := IngestResponse{
		Item:     result.Item,
		Partial:  result.Partial(),
		Warnings: result.Warnings(),
	}
	if result.ClassificationError != nil {
		resp.ClassificationErrorKind, _, _ = ErrorKind(result.ClassificationError)
	}
	if result.EmbeddingError != nil {
		resp.EmbeddingErrorKind, _, _ = ErrorKind(result.EmbeddingError)
	}
	writeData(w, h.logger, http.StatusCreated, resp)
}

// UpsertProfile handles POST /profiles
func (h *FeedbackHandler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.UserProfile
	if !decodeJSON(w, r, h.logger, &profile) {
		return
	}

	if err := h.ingestion.UpsertProfile(r.Context(), &profile); err != nil {
		writeServiceError(w, h.logger, "Upsert profile", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, profile)
}

// Get handles GET /feedback/{id}
func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseFeedbackID(w, r, h.logger)
	if !ok {
		return
	}

	item, err := h.query.GetFeedback(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "Get feedback", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, item)
}

// UpdateClassification handles PUT /feedback/{id}/classification
func (h *FeedbackHandler) UpdateClassification(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseFeedbackID(w, r, h.logger)
	if !ok {
		return
	}

	var c models.Classification
	if !decodeJSON(w, r, h.logger, &c) {
		return
	}

	item, err := h.query.UpdateClassification(r.Context(), id, c)
	if err != nil {
		writeServiceError(w, h.logger, "Update classification", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, item)
}

// Reclassify handles POST /reclassify. The body is optional.
func (h *FeedbackHandler) Reclassify(w http.ResponseWriter, r *http.Request) {
	var req reclassifyRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, h.logger, &req) {
			return
		}
	}

	result, err := h.query.Reclassify(r.Context(), req.OnlyUnclassified)
	if err != nil {
		writeServiceError(w, h.logger, "Reclassify", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

// decodeJSON decodes a bounded request body into dst, writing a
// validation_error response on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, logger, "Invalid request body")
		return false
	}
	return true
}
