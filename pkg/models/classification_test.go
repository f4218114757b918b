package models

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
)

func validClassification() *Classification {
	return &Classification{
		Sentiment:  SentimentNegative,
		Topics:     []string{"bug", "performance"},
		Urgency:    UrgencyHigh,
		Intent:     IntentSupportNeeded,
		Summary:    "App crashes on login",
		Confidence: 0.9,
	}
}

func TestClassification_Validate_OK(t *testing.T) {
	require.NoError(t, validClassification().Validate())
}

func TestClassification_Validate_Invariants(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(c *Classification)
		field string
	}{
		{"bad sentiment", func(c *Classification) { c.Sentiment = "angry" }, "sentiment"},
		{"bad urgency", func(c *Classification) { c.Urgency = "critical" }, "urgency"},
		{"bad intent", func(c *Classification) { c.Intent = "churn" }, "intent"},
		{"empty topics", func(c *Classification) { c.Topics = nil }, "topics"},
		{"unknown topic", func(c *Classification) { c.Topics = []string{"bug", "weather"} }, "topics"},
		{"confidence above one", func(c *Classification) { c.Confidence = 1.5 }, "confidence"},
		{"summary too long", func(c *Classification) { c.Summary = strings.Repeat("x", 101) }, "summary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClassification()
			tt.mut(c)
			err := c.Validate()
			require.Error(t, err)
			var ve *apperrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestTopics_ClosedSetHasThirteenValues(t *testing.T) {
	assert.Len(t, Topics, 13)
	assert.True(t, ValidTopic("api"))
	assert.False(t, ValidTopic("general"))
}

func TestFeedbackItem_Validate(t *testing.T) {
	score := 11
	item := &FeedbackItem{Text: "  ", Source: SourceNPS}
	assert.True(t, apperrors.IsValidation(item.Validate()))

	item.Text = "Great product"
	item.Source = "twitter"
	assert.True(t, apperrors.IsValidation(item.Validate()))

	item.Source = SourceNPS
	item.NPSScore = &score
	assert.True(t, apperrors.IsValidation(item.Validate()))

	score = 10
	assert.NoError(t, item.Validate())
}

func TestNPSLabel(t *testing.T) {
	assert.Equal(t, "Promoter", NPSLabel(9))
	assert.Equal(t, "Passive", NPSLabel(7))
	assert.Equal(t, "Detractor", NPSLabel(6))
	assert.Equal(t, "Detractor", NPSLabel(0))
}

func TestComputePercentage(t *testing.T) {
	assert.Equal(t, 0.0, ComputePercentage(0, 0))
	assert.Equal(t, 33.3, ComputePercentage(1, 3))
	assert.Equal(t, 66.7, ComputePercentage(2, 3))
	assert.Equal(t, 100.0, ComputePercentage(3, 3))
}

func TestGrain_Truncate(t *testing.T) {
	// Wednesday
	ts := time.Date(2026, 3, 18, 14, 35, 10, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 18, 14, 0, 0, 0, time.UTC), GrainHour.Truncate(ts))
	assert.Equal(t, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), GrainDay.Truncate(ts))
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), GrainWeek.Truncate(ts))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), GrainMonth.Truncate(ts))

	sunday := time.Date(2026, 3, 22, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), GrainWeek.Truncate(sunday))
}

func TestFeedbackFilters_ValidateAndPage(t *testing.T) {
	minMRR, maxMRR := 500.0, 100.0
	f := &FeedbackFilters{MinMRR: &minMRR, MaxMRR: &maxMRR}
	assert.True(t, apperrors.IsValidation(f.Validate()))

	f = &FeedbackFilters{Topics: []string{"pricing"}, Sentiments: []Sentiment{SentimentNegative}}
	require.NoError(t, f.Validate())
	limit, offset := f.Page()
	assert.Equal(t, DefaultSearchLimit, limit)
	assert.Equal(t, 0, offset)

	f.Limit = 10000
	limit, _ = f.Page()
	assert.Equal(t, MaxSearchLimit, limit)

	assert.Nil(t, f.Since(time.Now()))
	f.Days = 30
	now := time.Now()
	assert.Equal(t, now.AddDate(0, 0, -30), *f.Since(now))
}

func TestFeedbackFilters_NeedsProfile(t *testing.T) {
	mrr := 10.0
	assert.False(t, (&FeedbackFilters{Topics: []string{"pricing"}, Days: 7}).NeedsProfile())
	assert.True(t, (&FeedbackFilters{MinMRR: &mrr}).NeedsProfile())
	assert.True(t, (&FeedbackFilters{MaxMRR: &mrr}).NeedsProfile())
	assert.True(t, (&FeedbackFilters{SubscriptionTypes: []SubscriptionType{SubscriptionPro}}).NeedsProfile())
	assert.True(t, (&FeedbackFilters{Industries: []string{"fintech"}}).NeedsProfile())
}

func TestFeedbackFilters_RejectsNonFiniteMRR(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		f := &FeedbackFilters{MinMRR: Float64(v)}
		assert.True(t, apperrors.IsValidation(f.Validate()), "min_mrr %v", v)

		f = &FeedbackFilters{MaxMRR: Float64(v)}
		assert.True(t, apperrors.IsValidation(f.Validate()), "max_mrr %v", v)
	}
}

func TestUserProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile UserProfile
		wantErr bool
	}{
		{"minimal", UserProfile{UserID: "u1"}, false},
		{"zero mrr", UserProfile{UserID: "u1", MRR: Float64(0)}, false},
		{"missing user", UserProfile{MRR: Float64(10)}, true},
		{"bad plan", UserProfile{UserID: "u1", SubscriptionType: "platinum"}, true},
		{"negative mrr", UserProfile{UserID: "u1", MRR: Float64(-1)}, true},
		{"nan mrr", UserProfile{UserID: "u1", MRR: Float64(math.NaN())}, true},
		{"infinite mrr", UserProfile{UserID: "u1", MRR: Float64(math.Inf(1))}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				assert.True(t, apperrors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Equal(t, 0.0, (&UserProfile{}).MRRValue())
	assert.Equal(t, 42.0, (&UserProfile{MRR: Float64(42)}).MRRValue())
}
