package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

// alertRoutes maps URL segments to alert kinds.
var alertRoutes = map[string]services.AlertKind{
	"churn-risks": services.AlertChurnRisks,
	"urgent":      services.AlertUrgent,
	"upsell":      services.AlertUpsell,
	"detractors":  services.AlertDetractors,
	"promoters":   services.AlertPromoters,
}

// AlertHandler handles the canned alert queries.
type AlertHandler struct {
	query  services.QueryService
	logger *zap.Logger
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(query services.QueryService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		query:  query,
		logger: logger,
	}
}

// RegisterRoutes registers the alert handler's routes on the given mux.
func (h *AlertHandler) RegisterRoutes(mux *http.ServeMux) {
	for segment, kind := range alertRoutes {
		mux.HandleFunc("GET /alerts/"+segment, h.alert(kind))
	}
}

// alert handles GET /alerts/{kind}. Optional query parameters: days, limit,
// min_mrr (churn-risks) and subscription_types (urgent, upsell).
func (h *AlertHandler) alert(kind services.AlertKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var req services.AlertRequest
		var err error
		if req.Days, err = intQuery(q, "days", 0); err != nil {
			writeServiceError(w, h.logger, "Alert", err)
			return
		}
		if req.Limit, err = intQuery(q, "limit", 0); err != nil {
			writeServiceError(w, h.logger, "Alert", err)
			return
		}
		if req.MinMRR, err = floatParam(q, "min_mrr"); err != nil {
			writeServiceError(w, h.logger, "Alert", err)
			return
		}
		for _, s := range listParam(q, "subscription_types") {
			req.SubscriptionTypes = append(req.SubscriptionTypes, models.SubscriptionType(s))
		}

		result, err := h.query.Alert(r.Context(), kind, req)
		if err != nil {
			writeServiceError(w, h.logger, "Alert", err)
			return
		}

		writeData(w, h.logger, http.StatusOK, result)
	}
}
