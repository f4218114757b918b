package models

import (
	"time"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 500
)

// FeedbackFilters are the conjunctive, independently optional filters shared
// by metadata queries and similarity search.
type FeedbackFilters struct {
	Sources           []FeedbackSource   `json:"sources,omitempty"`
	Sentiments        []Sentiment        `json:"sentiments,omitempty"`
	Urgencies         []Urgency          `json:"urgency,omitempty"`
	Intents           []Intent           `json:"intents,omitempty"`
	Topics            []string           `json:"topics,omitempty"`
	SubscriptionTypes []SubscriptionType `json:"subscription_types,omitempty"`
	Industries        []string           `json:"industries,omitempty"`
	MinMRR            *float64           `json:"min_mrr,omitempty"`
	MaxMRR            *float64           `json:"max_mrr,omitempty"`
	MinNPS            *int               `json:"min_nps,omitempty"`
	MaxNPS            *int               `json:"max_nps,omitempty"`
	Days              int                `json:"days,omitempty"`
	StartDate         *time.Time         `json:"start_date,omitempty"`
	EndDate           *time.Time         `json:"end_date,omitempty"`

	// ChurnOrNegative matches intent churn_risk OR sentiment negative.
	ChurnOrNegative bool `json:"-"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Validate checks enumeration membership and numeric ranges.
func (f *FeedbackFilters) Validate() error {
	for _, s := range f.Sources {
		if !s.Valid() {
			return apperrors.NewValidationError("sources", "invalid source %q", s)
		}
	}
	for _, s := range f.Sentiments {
		if !s.Valid() {
			return apperrors.NewValidationError("sentiments", "invalid sentiment %q", s)
		}
	}
	for _, u := range f.Urgencies {
		if !u.Valid() {
			return apperrors.NewValidationError("urgency", "invalid urgency %q", u)
		}
	}
	for _, i := range f.Intents {
		if !i.Valid() {
			return apperrors.NewValidationError("intents", "invalid intent %q", i)
		}
	}
	for _, t := range f.Topics {
		if !ValidTopic(t) {
			return apperrors.NewValidationError("topics", "invalid topic %q", t)
		}
	}
	for _, s := range f.SubscriptionTypes {
		if !s.Valid() {
			return apperrors.NewValidationError("subscription_types", "invalid subscription type %q", s)
		}
	}
	if f.MinMRR != nil && !IsFinite(*f.MinMRR) {
		return apperrors.NewValidationError("min_mrr", "must be a finite number")
	}
	if f.MaxMRR != nil && !IsFinite(*f.MaxMRR) {
		return apperrors.NewValidationError("max_mrr", "must be a finite number")
	}
	if f.MinMRR != nil && *f.MinMRR < 0 {
		return apperrors.NewValidationError("min_mrr", "must be >= 0")
	}
	if f.MinMRR != nil && f.MaxMRR != nil && *f.MinMRR > *f.MaxMRR {
		return apperrors.NewValidationError("min_mrr", "must not exceed max_mrr")
	}
	if f.MinNPS != nil && (*f.MinNPS < 0 || *f.MinNPS > 10) {
		return apperrors.NewValidationError("min_nps", "must be between 0 and 10")
	}
	if f.MaxNPS != nil && (*f.MaxNPS < 0 || *f.MaxNPS > 10) {
		return apperrors.NewValidationError("max_nps", "must be between 0 and 10")
	}
	if f.Days < 0 {
		return apperrors.NewValidationError("days", "must be >= 0")
	}
	if f.Limit < 0 || f.Offset < 0 {
		return apperrors.NewValidationError("limit", "limit and offset must be >= 0")
	}
	return nil
}

// Page returns the effective limit and offset.
func (f *FeedbackFilters) Page() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	offset = f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Since returns the lower bound implied by Days, or nil when Days is unset.
func (f *FeedbackFilters) Since(now time.Time) *time.Time {
	if f.Days <= 0 {
		return nil
	}
	t := now.AddDate(0, 0, -f.Days)
	return &t
}

// NeedsProfile returns true if any filter requires a joined user profile.
func (f *FeedbackFilters) NeedsProfile() bool {
	return f.MinMRR != nil || f.MaxMRR != nil || len(f.SubscriptionTypes) > 0 || len(f.Industries) > 0
}

// Grain is the bucket size for volume analytics.
type Grain string

const (
	GrainHour  Grain = "hour"
	GrainDay   Grain = "day"
	GrainWeek  Grain = "week"
	GrainMonth Grain = "month"
)

// Valid returns true if g is a known grain.
func (g Grain) Valid() bool {
	switch g {
	case GrainHour, GrainDay, GrainWeek, GrainMonth:
		return true
	}
	return false
}

// Truncate returns the start of the bucket containing t, in UTC.
// Weeks start on Monday.
func (g Grain) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GrainHour:
		return t.Truncate(time.Hour)
	case GrainWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GrainMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}
