package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

const (
	// MaxAnswerItems is the number of feedback items included in an answer prompt.
	MaxAnswerItems = 20
	// MaxAnswerItemLength truncates each item's text in an answer prompt.
	MaxAnswerItemLength = 500

	AnswerTemperature = 0.3
	AnswerMaxTokens   = 1000
)

// AnswerSystemMessage frames question answering over retrieved feedback.
const AnswerSystemMessage = "You are a helpful assistant for Product Managers analyzing customer feedback."

// BuildAnswerPrompt creates the prompt for answering a question from retrieved
// feedback. extraContext is optional framing placed before the items.
func BuildAnswerPrompt(question string, items []*models.FeedbackItem, extraContext string) string {
	var prompt strings.Builder

	if extraContext != "" {
		prompt.WriteString(extraContext)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("Here are relevant feedback items:\n\n")

	if len(items) > MaxAnswerItems {
		items = items[:MaxAnswerItems]
	}
	for i, item := range items {
		if i > 0 {
			prompt.WriteString("\n\n")
		}
		prompt.WriteString(FormatAnswerItem(i+1, item))
	}

	prompt.WriteString("\n\nBased on this feedback, answer the following question:\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\nProvide a clear, actionable answer. Include specific examples from the feedback when relevant.\n")
	prompt.WriteString("If the feedback doesn't contain enough information to fully answer, say so.\n")

	return prompt.String()
}

// FormatAnswerItem renders one numbered item with its customer and label context.
func FormatAnswerItem(n int, item *models.FeedbackItem) string {
	var line strings.Builder
	line.WriteString(fmt.Sprintf("%d. [%s]", n, item.Source))

	if p := item.UserProfile; p != nil {
		line.WriteString(fmt.Sprintf(" [%s, $%.0f MRR]", orUnknown(string(p.SubscriptionType)), p.MRRValue()))
	}
	if item.NPSScore != nil {
		line.WriteString(fmt.Sprintf(" NPS: %d", *item.NPSScore))
	}
	if c := item.Classification; c != nil {
		line.WriteString(fmt.Sprintf(" (sentiment: %s, topics: %s)", c.Sentiment, strings.Join(c.Topics, ", ")))
	}

	line.WriteString(fmt.Sprintf("\n   %q", truncateRunes(item.Text, MaxAnswerItemLength)))
	return line.String()
}

// TopicSummaryQuestion is the fixed question used to summarize one topic.
func TopicSummaryQuestion(topic string) string {
	return fmt.Sprintf("Summarize the key themes and issues in feedback about %s. "+
		"Include specific examples and prioritize by frequency and impact.", topic)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
