package models

import (
	"slices"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
)

// Sentiment is the overall tone of a feedback item.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// AllSentiments lists every valid sentiment.
var AllSentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}

// Valid returns true if s is a known sentiment.
func (s Sentiment) Valid() bool {
	return slices.Contains(AllSentiments, s)
}

// Urgency is how quickly a feedback item needs attention.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// AllUrgencies lists every valid urgency level.
var AllUrgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh}

// Valid returns true if u is a known urgency level.
func (u Urgency) Valid() bool {
	return slices.Contains(AllUrgencies, u)
}

// Intent is the business signal carried by a feedback item.
type Intent string

const (
	IntentChurnRisk         Intent = "churn_risk"
	IntentUpsellOpportunity Intent = "upsell_opportunity"
	IntentSupportNeeded     Intent = "support_needed"
	IntentFeatureAdvocacy   Intent = "feature_advocacy"
	IntentGeneralFeedback   Intent = "general_feedback"
)

// AllIntents lists every valid intent.
var AllIntents = []Intent{
	IntentChurnRisk,
	IntentUpsellOpportunity,
	IntentSupportNeeded,
	IntentFeatureAdvocacy,
	IntentGeneralFeedback,
}

// Valid returns true if i is a known intent.
func (i Intent) Valid() bool {
	return slices.Contains(AllIntents, i)
}

// Topics is the closed set of topic labels a classification may carry.
var Topics = []string{
	"bug",
	"feature_request",
	"pricing",
	"ux",
	"performance",
	"onboarding",
	"support",
	"documentation",
	"integration",
	"security",
	"billing",
	"mobile",
	"api",
}

// ValidTopic returns true if topic is in the closed topic set.
func ValidTopic(topic string) bool {
	return slices.Contains(Topics, topic)
}

const (
	// MaxSummaryLength is the cap on Classification.Summary, in runes.
	MaxSummaryLength = 100

	// ManualConfidence marks a classification as human-verified.
	ManualConfidence = 1.0
)

// Classification is the model-produced (or manually edited) annotation of a feedback item.
type Classification struct {
	Sentiment  Sentiment `json:"sentiment"`
	Topics     []string  `json:"topics"`
	Urgency    Urgency   `json:"urgency"`
	Intent     Intent    `json:"intent"`
	Summary    string    `json:"summary"`
	Confidence float64   `json:"confidence"`
}

// Validate checks every classification invariant.
func (c *Classification) Validate() error {
	if !c.Sentiment.Valid() {
		return apperrors.NewValidationError("sentiment", "invalid sentiment %q", c.Sentiment)
	}
	if !c.Urgency.Valid() {
		return apperrors.NewValidationError("urgency", "invalid urgency %q", c.Urgency)
	}
	if !c.Intent.Valid() {
		return apperrors.NewValidationError("intent", "invalid intent %q", c.Intent)
	}
	if len(c.Topics) == 0 {
		return apperrors.NewValidationError("topics", "at least one topic is required")
	}
	for _, t := range c.Topics {
		if !ValidTopic(t) {
			return apperrors.NewValidationError("topics", "invalid topic %q", t)
		}
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return apperrors.NewValidationError("confidence", "must be between 0 and 1, got %v", c.Confidence)
	}
	if len([]rune(c.Summary)) > MaxSummaryLength {
		return apperrors.NewValidationError("summary", "must be at most %d characters", MaxSummaryLength)
	}
	return nil
}

// HasTopic returns true if the classification carries topic.
func (c *Classification) HasTopic(topic string) bool {
	return slices.Contains(c.Topics, topic)
}
