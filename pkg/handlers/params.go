package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

// ParseFeedbackID extracts and validates the feedback ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: id
func ParseFeedbackID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "Invalid feedback ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeBadRequest(w, logger, errorMessage)
		return uuid.Nil, false
	}
	return id, true
}

// ParseFilters reads search filters from query parameters. List parameters
// accept comma-separated values and may repeat. When no time bound is given,
// days defaults to 30; days=0 searches all time.
func ParseFilters(q url.Values) (models.FeedbackFilters, error) {
	var f models.FeedbackFilters

	for _, s := range listParam(q, "sources") {
		f.Sources = append(f.Sources, models.FeedbackSource(s))
	}
	for _, s := range listParam(q, "sentiments") {
		f.Sentiments = append(f.Sentiments, models.Sentiment(s))
	}
	for _, s := range listParam(q, "urgency") {
		f.Urgencies = append(f.Urgencies, models.Urgency(s))
	}
	for _, s := range listParam(q, "intents") {
		f.Intents = append(f.Intents, models.Intent(s))
	}
	f.Topics = listParam(q, "topics")
	for _, s := range listParam(q, "subscription_types") {
		f.SubscriptionTypes = append(f.SubscriptionTypes, models.SubscriptionType(s))
	}
	f.Industries = listParam(q, "industries")

	var err error
	if f.MinMRR, err = floatParam(q, "min_mrr"); err != nil {
		return f, err
	}
	if f.MaxMRR, err = floatParam(q, "max_mrr"); err != nil {
		return f, err
	}
	if f.MinNPS, err = intParam(q, "min_nps"); err != nil {
		return f, err
	}
	if f.MaxNPS, err = intParam(q, "max_nps"); err != nil {
		return f, err
	}
	if f.StartDate, err = dateParam(q, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = dateParam(q, "end_date"); err != nil {
		return f, err
	}

	days, err := intParam(q, "days")
	if err != nil {
		return f, err
	}
	switch {
	case days != nil:
		f.Days = *days
	case f.StartDate == nil && f.EndDate == nil:
		f.Days = services.DefaultSearchDays
	}

	if limit, err := intParam(q, "limit"); err != nil {
		return f, err
	} else if limit != nil {
		f.Limit = *limit
	}
	if offset, err := intParam(q, "offset"); err != nil {
		return f, err
	} else if offset != nil {
		f.Offset = *offset
	}

	return f, f.Validate()
}

func listParam(q url.Values, name string) []string {
	var out []string
	for _, raw := range q[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(q url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.NewValidationError(name, "must be an integer, got %q", raw)
	}
	return &v, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.NewValidationError(name, "must be a number, got %q", raw)
	}
	return &v, nil
}

func dateParam(q url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperrors.NewValidationError(name, "must be RFC3339 or YYYY-MM-DD, got %q", raw)
}

// intQuery returns the integer query parameter or def when it is absent.
func intQuery(q url.Values, name string, def int) (int, error) {
	v, err := intParam(q, name)
	if err != nil || v == nil {
		return def, err
	}
	return *v, nil
}
