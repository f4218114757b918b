package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

type askRequest struct {
	Question string                  `json:"question"`
	Filters  *models.FeedbackFilters `json:"filters,omitempty"`
}

// QueryHandler serves search, Q&A and analytics over stored feedback.
type QueryHandler struct {
	query  services.QueryService
	logger *zap.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(query services.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		query:  query,
		logger: logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("POST /ask", h.Ask)
	mux.HandleFunc("GET /topic/{topic}/summary", h.TopicSummary)
	mux.HandleFunc("POST /custom-search", h.CustomSearch)
	mux.HandleFunc("GET /stats", h.Stats)
	mux.HandleFunc("GET /analytics/volume", h.Volume)
}

// Search handles GET /search
func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	filters, err := ParseFilters(r.URL.Query())
	if err != nil {
		writeServiceError(w, h.logger, "Search", err)
		return
	}

	result, err := h.query.Search(r.Context(), services.SearchRequest{
		Query:   r.URL.Query().Get("query"),
		Filters: filters,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Search", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

// Ask handles POST /ask
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	filters := models.FeedbackFilters{Days: services.DefaultSearchDays}
	if req.Filters != nil {
		filters = *req.Filters
	}

	result, err := h.query.Ask(r.Context(), req.Question, filters)
	if err != nil {
		writeServiceError(w, h.logger, "Ask", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

// TopicSummary handles GET /topic/{topic}/summary
func (h *QueryHandler) TopicSummary(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r.URL.Query(), "days", services.DefaultSearchDays)
	if err != nil {
		writeServiceError(w, h.logger, "Topic summary", err)
		return
	}

	summary, err := h.query.TopicSummary(r.Context(), r.PathValue("topic"), days)
	if err != nil {
		writeServiceError(w, h.logger, "Topic summary", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, summary)
}

// CustomSearch handles POST /custom-search
func (h *QueryHandler) CustomSearch(w http.ResponseWriter, r *http.Request) {
	var req services.CustomSearchRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	result, err := h.query.CustomSearch(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "Custom search", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

// Stats handles GET /stats
func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r.URL.Query(), "days", services.DefaultSearchDays)
	if err != nil {
		writeServiceError(w, h.logger, "Stats", err)
		return
	}

	stats, err := h.query.Stats(r.Context(), days)
	if err != nil {
		writeServiceError(w, h.logger, "Stats", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, stats)
}

// Volume handles GET /analytics/volume
func (h *QueryHandler) Volume(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	daysBack, err := intQuery(q, "days_back", services.DefaultVolumeDays)
	if err != nil {
		writeServiceError(w, h.logger, "Volume", err)
		return
	}
	filters, err := ParseFilters(q)
	if err != nil {
		writeServiceError(w, h.logger, "Volume", err)
		return
	}
	// days_back bounds the window.
	filters.Days = 0

	report, err := h.query.Volume(r.Context(), models.Grain(q.Get("grain")), daysBack, filters)
	if err != nil {
		writeServiceError(w, h.logger, "Volume", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, report)
}
