package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
)

// FeedbackSource identifies where a feedback item came from.
type FeedbackSource string

const (
	SourceNPS      FeedbackSource = "nps"
	SourceZendesk  FeedbackSource = "zendesk"
	SourceIntercom FeedbackSource = "intercom"
	SourceEmail    FeedbackSource = "email"
	SourceOther    FeedbackSource = "other"
)

// AllSources lists every valid feedback source.
var AllSources = []FeedbackSource{SourceNPS, SourceZendesk, SourceIntercom, SourceEmail, SourceOther}

// Valid returns true if s is a known source.
func (s FeedbackSource) Valid() bool {
	return slices.Contains(AllSources, s)
}

// FeedbackItem is one piece of customer feedback plus its AI annotations.
type FeedbackItem struct {
	ID             uuid.UUID       `json:"id"`
	Text           string          `json:"text"`
	Source         FeedbackSource  `json:"source"`
	NPSScore       *int            `json:"nps_score,omitempty"`
	TicketID       *string         `json:"ticket_id,omitempty"`
	TicketPriority *string         `json:"ticket_priority,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UserID         *string         `json:"user_id"`
	Classification *Classification `json:"classification"`
	Embedding      []float32       `json:"-"`

	// Populated on reads when a profile exists for UserID.
	UserProfile *UserProfile `json:"user_profile,omitempty"`
	// Set on similarity-ranked results only.
	Similarity *float32 `json:"similarity,omitempty"`
}

// Validate checks the fields required before any provider call.
func (f *FeedbackItem) Validate() error {
	if strings.TrimSpace(f.Text) == "" {
		return apperrors.NewValidationError("text", "text is required")
	}
	if !f.Source.Valid() {
		return apperrors.NewValidationError("source", "invalid source %q", f.Source)
	}
	if f.NPSScore != nil && (*f.NPSScore < 0 || *f.NPSScore > 10) {
		return apperrors.NewValidationError("nps_score", "must be between 0 and 10, got %d", *f.NPSScore)
	}
	if f.Classification != nil {
		if err := f.Classification.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HasEmbedding returns true if the item carries an embedding vector.
func (f *FeedbackItem) HasEmbedding() bool {
	return len(f.Embedding) > 0
}

// NPSLabel returns the NPS bucket for a 0-10 score.
func NPSLabel(score int) string {
	switch {
	case score >= 9:
		return "Promoter"
	case score >= 7:
		return "Passive"
	default:
		return "Detractor"
	}
}
