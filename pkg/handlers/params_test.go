package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

func TestParseFeedbackID(t *testing.T) {
	id := uuid.New()

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/feedback/"+id.String(), nil)
		req.SetPathValue("id", id.String())
		rec := httptest.NewRecorder()

		got, ok := ParseFeedbackID(rec, req, zap.NewNop())
		assert.True(t, ok)
		assert.Equal(t, id, got)
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/feedback/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()

		got, ok := ParseFeedbackID(rec, req, zap.NewNop())
		assert.False(t, ok)
		assert.Equal(t, uuid.Nil, got)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		kind, _ := decodeError(t, rec)
		assert.Equal(t, KindValidation, kind)
	})
}

func TestParseFilters(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		f, err := ParseFilters(url.Values{})
		require.NoError(t, err)
		assert.Equal(t, 30, f.Days)
		assert.Zero(t, f.Limit)
	})

	t.Run("lists and ranges", func(t *testing.T) {
		q := url.Values{
			"sources":            {"nps,zendesk"},
			"sentiments":         {"negative"},
			"topics":             {"billing", "performance"},
			"urgency":            {"medium, high"},
			"intents":            {"churn_risk"},
			"subscription_types": {"enterprise"},
			"industries":         {"fintech"},
			"min_mrr":            {"100"},
			"max_nps":            {"6"},
			"days":               {"7"},
			"limit":              {"5"},
			"offset":             {"10"},
		}
		f, err := ParseFilters(q)
		require.NoError(t, err)
		assert.Equal(t, []models.FeedbackSource{models.SourceNPS, models.SourceZendesk}, f.Sources)
		assert.Equal(t, []string{"billing", "performance"}, f.Topics)
		assert.Len(t, f.Urgencies, 2)
		assert.Equal(t, []string{"fintech"}, f.Industries)
		require.NotNil(t, f.MinMRR)
		assert.Equal(t, 100.0, *f.MinMRR)
		require.NotNil(t, f.MaxNPS)
		assert.Equal(t, 6, *f.MaxNPS)
		assert.Equal(t, 7, f.Days)
		assert.Equal(t, 5, f.Limit)
		assert.Equal(t, 10, f.Offset)
	})

	t.Run("explicit zero days is all time", func(t *testing.T) {
		f, err := ParseFilters(url.Values{"days": {"0"}})
		require.NoError(t, err)
		assert.Zero(t, f.Days)
	})

	t.Run("date bounds disable the default window", func(t *testing.T) {
		f, err := ParseFilters(url.Values{"start_date": {"2026-01-01"}, "end_date": {"2026-02-01T00:00:00Z"}})
		require.NoError(t, err)
		assert.Zero(t, f.Days)
		require.NotNil(t, f.StartDate)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *f.StartDate)
		require.NotNil(t, f.EndDate)
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, q := range []url.Values{
			{"days": {"week"}},
			{"min_mrr": {"lots"}},
			{"start_date": {"yesterday"}},
			{"sentiments": {"ecstatic"}},
			{"min_nps": {"11"}},
		} {
			_, err := ParseFilters(q)
			assert.True(t, apperrors.IsValidation(err), "%v", q)
		}
	})
}
