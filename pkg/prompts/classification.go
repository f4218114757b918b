package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

const (
	// ClassificationTemperature keeps labels stable across runs.
	ClassificationTemperature = 0.1
	// ClassificationMaxTokens bounds the JSON object returned by the model.
	ClassificationMaxTokens = 400
)

// ClassificationSystemMessage is sent with every classification request.
const ClassificationSystemMessage = "You classify customer feedback for a SaaS product team. " +
	"You respond with a single JSON object and nothing else."

// ClassificationInput is the feedback and customer context sent for labeling.
type ClassificationInput struct {
	Text     string
	Source   models.FeedbackSource
	NPSScore *int
	Profile  *models.UserProfile
}

// BuildClassificationPrompt creates the prompt for labeling one feedback item
// with sentiment, topics, urgency, intent, a short summary and a confidence.
func BuildClassificationPrompt(in ClassificationInput) string {
	var prompt strings.Builder

	prompt.WriteString("Analyze this customer feedback and classify it. Return ONLY valid JSON.\n\n")

	source := string(in.Source)
	if source == "" {
		source = "unknown"
	}
	prompt.WriteString(fmt.Sprintf("Feedback Source: %s\n", source))
	if in.NPSScore != nil {
		prompt.WriteString(fmt.Sprintf("NPS Score: %d/10 (%s)\n", *in.NPSScore, models.NPSLabel(*in.NPSScore)))
	}

	if p := in.Profile; p != nil {
		prompt.WriteString("\nUser Context:\n")
		prompt.WriteString(fmt.Sprintf("- Subscription: %s\n", orUnknown(string(p.SubscriptionType))))
		prompt.WriteString(fmt.Sprintf("- MRR: $%.2f\n", p.MRRValue()))
		prompt.WriteString(fmt.Sprintf("- Company: %s\n", orUnknown(p.CompanyName)))
		prompt.WriteString(fmt.Sprintf("- Industry: %s\n", orUnknown(p.Industry)))
	}

	prompt.WriteString("\nFeedback Text:\n\"\"\"")
	prompt.WriteString(in.Text)
	prompt.WriteString("\"\"\"\n\n")

	prompt.WriteString("Classify into the following categories:\n\n")

	prompt.WriteString(fmt.Sprintf("1. sentiment: One of [%s]\n\n", quoteList(sentimentValues())))

	prompt.WriteString(fmt.Sprintf("2. topics: Array of applicable topics from:\n   [%s]\n", quoteList(models.Topics)))
	prompt.WriteString("   Select 1-3 most relevant topics.\n\n")

	prompt.WriteString(fmt.Sprintf("3. urgency: One of [%s]\n", quoteList(urgencyValues())))
	prompt.WriteString("   - high: Critical issues, potential churn, security/data concerns\n")
	prompt.WriteString("   - medium: Significant friction, clear frustration\n")
	prompt.WriteString("   - low: General feedback, suggestions, minor issues\n\n")

	prompt.WriteString("4. intent: One of:\n")
	for _, intent := range models.AllIntents {
		prompt.WriteString(fmt.Sprintf("   - %q: %s\n", string(intent), intentDescriptions[intent]))
	}
	prompt.WriteString("\n")

	prompt.WriteString(fmt.Sprintf("5. summary: One sentence summary of the feedback (max %d chars)\n\n", models.MaxSummaryLength))
	prompt.WriteString("6. confidence: Your confidence in this classification (0.0 to 1.0)\n\n")

	prompt.WriteString("Return JSON only, no markdown:\n")
	prompt.WriteString(`{"sentiment": "...", "topics": [...], "urgency": "...", "intent": "...", "summary": "...", "confidence": 0.0}`)
	prompt.WriteString("\n")

	return prompt.String()
}

var intentDescriptions = map[models.Intent]string{
	models.IntentChurnRisk:         "User expressing frustration that could lead to cancellation",
	models.IntentUpsellOpportunity: "User requesting features in higher tiers or expressing growth needs",
	models.IntentSupportNeeded:     "User needs help with current functionality",
	models.IntentFeatureAdvocacy:   "User loves a feature or wants to see it expanded",
	models.IntentGeneralFeedback:   "General comments without specific action needed",
}

func sentimentValues() []string {
	out := make([]string, len(models.AllSentiments))
	for i, s := range models.AllSentiments {
		out[i] = string(s)
	}
	return out
}

func urgencyValues() []string {
	out := make([]string, len(models.AllUrgencies))
	for i, u := range models.AllUrgencies {
		out[i] = string(u)
	}
	return out
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
