package classifier

import (
	"encoding/json"
	"strings"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

const (
	// MaxModelConfidence caps provider confidence; 1.0 marks a manual edit.
	MaxModelConfidence = 0.99
	// DefaultConfidence is used when the provider omits a confidence.
	DefaultConfidence = 0.8
)

// rawClassification is the provider JSON before normalization. Fields are
// raw so that strings, numbers and comma lists all decode.
type rawClassification struct {
	Sentiment  json.RawMessage `json:"sentiment"`
	Topics     json.RawMessage `json:"topics"`
	Urgency    json.RawMessage `json:"urgency"`
	Intent     json.RawMessage `json:"intent"`
	Summary    json.RawMessage `json:"summary"`
	Confidence json.RawMessage `json:"confidence"`
}

var sentimentSynonyms = map[string]models.Sentiment{
	"pos":           models.SentimentPositive,
	"very_positive": models.SentimentPositive,
	"mixed":         models.SentimentNeutral,
	"neg":           models.SentimentNegative,
	"very_negative": models.SentimentNegative,
}

var urgencySynonyms = map[string]models.Urgency{
	"critical": models.UrgencyHigh,
	"urgent":   models.UrgencyHigh,
	"severe":   models.UrgencyHigh,
	"moderate": models.UrgencyMedium,
	"normal":   models.UrgencyMedium,
	"minor":    models.UrgencyLow,
	"none":     models.UrgencyLow,
}

var intentSynonyms = map[string]models.Intent{
	"churn":        models.IntentChurnRisk,
	"cancellation": models.IntentChurnRisk,
	"upsell":       models.IntentUpsellOpportunity,
	"expansion":    models.IntentUpsellOpportunity,
	"support":      models.IntentSupportNeeded,
	"help":         models.IntentSupportNeeded,
	"advocacy":     models.IntentFeatureAdvocacy,
	"praise":       models.IntentFeatureAdvocacy,
	"general":      models.IntentGeneralFeedback,
	"feedback":     models.IntentGeneralFeedback,
}

var topicSynonyms = map[string]string{
	"feature":          "feature_request",
	"features":         "feature_request",
	"bugs":             "bug",
	"crash":            "bug",
	"ui":               "ux",
	"user_experience":  "ux",
	"usability":        "ux",
	"design":           "ux",
	"speed":            "performance",
	"latency":          "performance",
	"docs":             "documentation",
	"integrations":     "integration",
	"price":            "pricing",
	"cost":             "pricing",
	"payment":          "billing",
	"invoice":          "billing",
	"invoicing":        "billing",
	"mobile_app":       "mobile",
	"ios":              "mobile",
	"android":          "mobile",
	"customer_support": "support",
	"privacy":          "security",
	"data_privacy":     "security",
	"apis":             "api",
}

// normalizeKey lowercases, trims and joins words with underscores,
// so "Feature Request" and "feature-request" both become "feature_request".
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return strings.Trim(s, "_\"'.")
}

func normalizeSentiment(raw string) (models.Sentiment, bool) {
	key := normalizeKey(raw)
	if s := models.Sentiment(key); s.Valid() {
		return s, true
	}
	s, ok := sentimentSynonyms[key]
	return s, ok
}

func normalizeUrgency(raw string) (models.Urgency, bool) {
	key := normalizeKey(raw)
	if u := models.Urgency(key); u.Valid() {
		return u, true
	}
	u, ok := urgencySynonyms[key]
	return u, ok
}

func normalizeIntent(raw string) (models.Intent, bool) {
	key := normalizeKey(raw)
	if i := models.Intent(key); i.Valid() {
		return i, true
	}
	i, ok := intentSynonyms[key]
	return i, ok
}

// normalizeTopics maps synonyms, drops unknown topics and removes duplicates
// while keeping the provider's order.
func normalizeTopics(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		key := normalizeKey(t)
		if !models.ValidTopic(key) {
			mapped, ok := topicSynonyms[key]
			if !ok {
				continue
			}
			key = mapped
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func truncateSummary(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= models.MaxSummaryLength {
		return s
	}
	return strings.TrimSpace(string(r[:models.MaxSummaryLength]))
}

func clampConfidence(raw json.RawMessage) float64 {
	c, ok := jsonutil.FlexibleFloatValue(raw)
	if !ok {
		return DefaultConfidence
	}
	if c > 1 && c <= 100 {
		// Some models answer on a 0-100 scale.
		c /= 100
	}
	switch {
	case c < 0:
		return 0
	case c > MaxModelConfidence:
		return MaxModelConfidence
	}
	return c
}

// normalizeClassification turns provider output into a Classification that
// satisfies every invariant, or fails with ErrInvalidClassification.
func normalizeClassification(raw rawClassification) (*models.Classification, error) {
	sentimentRaw := jsonutil.FlexibleStringValue(raw.Sentiment)
	sentiment, ok := normalizeSentiment(sentimentRaw)
	if !ok {
		return nil, apperrors.InvalidClassification("sentiment %q is not recognized", sentimentRaw)
	}

	urgencyRaw := jsonutil.FlexibleStringValue(raw.Urgency)
	urgency, ok := normalizeUrgency(urgencyRaw)
	if !ok {
		return nil, apperrors.InvalidClassification("urgency %q is not recognized", urgencyRaw)
	}

	intentRaw := jsonutil.FlexibleStringValue(raw.Intent)
	intent, ok := normalizeIntent(intentRaw)
	if !ok {
		return nil, apperrors.InvalidClassification("intent %q is not recognized", intentRaw)
	}

	topics := normalizeTopics(jsonutil.FlexibleStringSlice(raw.Topics))
	if len(topics) == 0 {
		return nil, apperrors.InvalidClassification("no recognized topics in %s", string(raw.Topics))
	}

	c := &models.Classification{
		Sentiment:  sentiment,
		Topics:     topics,
		Urgency:    urgency,
		Intent:     intent,
		Summary:    truncateSummary(jsonutil.FlexibleStringValue(raw.Summary)),
		Confidence: clampConfidence(raw.Confidence),
	}

	// The normalized value must still pass the model invariants.
	if err := c.Validate(); err != nil {
		return nil, apperrors.InvalidClassification("%v", err)
	}
	return c, nil
}
