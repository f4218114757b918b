package models

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
)

// SubscriptionType is the plan a customer is on.
type SubscriptionType string

const (
	SubscriptionFree       SubscriptionType = "free"
	SubscriptionStarter    SubscriptionType = "starter"
	SubscriptionPro        SubscriptionType = "pro"
	SubscriptionEnterprise SubscriptionType = "enterprise"
)

// AllSubscriptionTypes lists every valid plan.
var AllSubscriptionTypes = []SubscriptionType{
	SubscriptionFree,
	SubscriptionStarter,
	SubscriptionPro,
	SubscriptionEnterprise,
}

// Valid returns true if s is a known plan.
func (s SubscriptionType) Valid() bool {
	return slices.Contains(AllSubscriptionTypes, s)
}

// UserProfile holds customer metadata used to filter and prioritise feedback.
type UserProfile struct {
	UserID           string           `json:"user_id"`
	Email            string           `json:"email,omitempty"`
	SubscriptionType SubscriptionType `json:"subscription_type,omitempty"`
	MRR              *float64         `json:"mrr,omitempty"` // nil keeps the stored value on upsert
	CompanyName      string           `json:"company_name,omitempty"`
	Industry         string           `json:"industry,omitempty"`
	SignupDate       *time.Time       `json:"signup_date,omitempty"`
	CustomTraits     map[string]any   `json:"custom_traits,omitempty"`
}

// Validate checks profile invariants. An empty subscription type is allowed.
func (p *UserProfile) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return apperrors.NewValidationError("user_id", "user_id is required")
	}
	if p.SubscriptionType != "" && !p.SubscriptionType.Valid() {
		return apperrors.NewValidationError("subscription_type", "invalid subscription type %q", p.SubscriptionType)
	}
	if p.MRR != nil {
		if !IsFinite(*p.MRR) {
			return apperrors.NewValidationError("mrr", "must be a finite number")
		}
		if *p.MRR < 0 {
			return apperrors.NewValidationError("mrr", "must be >= 0, got %v", *p.MRR)
		}
	}
	return nil
}

// MRRValue returns the monthly recurring revenue, 0 when unknown.
func (p *UserProfile) MRRValue() float64 {
	if p.MRR == nil {
		return 0
	}
	return *p.MRR
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
