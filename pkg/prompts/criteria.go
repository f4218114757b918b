package prompts

import (
	"strings"
)

// CriteriaTemperature keeps match decisions stable.
const CriteriaTemperature = 0.1

// CriteriaMaxTokens bounds the {"matches", "reason"} object.
const CriteriaMaxTokens = 200

// BuildCriteriaPrompt asks whether one feedback text satisfies free-text
// criteria, e.g. "Does this mention a competitor?".
func BuildCriteriaPrompt(criteria, text string) string {
	var prompt strings.Builder

	prompt.WriteString("Analyze this customer feedback based on the following question:\n\n")
	prompt.WriteString("Question: ")
	prompt.WriteString(criteria)
	prompt.WriteString("\n\nFeedback:\n\"\"\"")
	prompt.WriteString(text)
	prompt.WriteString("\"\"\"\n\n")
	prompt.WriteString("Answer with JSON only:\n")
	prompt.WriteString(`{"matches": true/false, "reason": "brief explanation"}`)
	prompt.WriteString("\n")

	return prompt.String()
}
