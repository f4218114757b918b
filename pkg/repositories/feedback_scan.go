package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

const feedbackFrom = `feedback_items f LEFT JOIN user_profiles p ON p.user_id = f.user_id`

// countFrom is the FROM clause for queries that read no profile columns.
// The profile join is only added when a filter references it.
func countFrom(filters models.FeedbackFilters) string {
	if filters.NeedsProfile() {
		return feedbackFrom
	}
	return `feedback_items f`
}

const feedbackColumns = `
	f.id, f.text, f.source, f.nps_score, f.ticket_id, f.ticket_priority, f.user_id, f.created_at,
	f.sentiment, f.topics, f.urgency, f.intent, f.summary, f.confidence,
	p.user_id, p.email, p.subscription_type, p.mrr, p.company_name, p.industry, p.signup_date, p.custom_traits`

func selectColumns(withEmbedding bool) string {
	if withEmbedding {
		return feedbackColumns + ", f.embedding"
	}
	return feedbackColumns
}

// feedbackRow is the driver-neutral form of one joined row.
type feedbackRow struct {
	id             uuid.UUID
	text           string
	source         string
	npsScore       *int
	ticketID       *string
	ticketPriority *string
	userID         *string
	createdAt      time.Time

	sentiment  *string
	topics     []string
	urgency    *string
	intent     *string
	summary    *string
	confidence *float64

	profileUserID    *string
	email            *string
	subscriptionType *string
	mrr              *float64
	companyName      *string
	industry         *string
	signupDate       *time.Time
	customTraits     []byte

	embedding []float32
}

func (d dialect) scanFeedback(rows rowScanner, withEmbedding bool) (*models.FeedbackItem, error) {
	var row feedbackRow
	var err error
	if d == dialectSQLite {
		err = scanSQLiteFeedback(rows, withEmbedding, &row)
	} else {
		dest := []any{
			&row.id, &row.text, &row.source, &row.npsScore, &row.ticketID, &row.ticketPriority, &row.userID, &row.createdAt,
			&row.sentiment, &row.topics, &row.urgency, &row.intent, &row.summary, &row.confidence,
			&row.profileUserID, &row.email, &row.subscriptionType, &row.mrr, &row.companyName, &row.industry, &row.signupDate, &row.customTraits,
		}
		if withEmbedding {
			dest = append(dest, &row.embedding)
		}
		err = rows.Scan(dest...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan feedback item: %w", err)
	}
	return row.toItem()
}

func scanSQLiteFeedback(rows rowScanner, withEmbedding bool, row *feedbackRow) error {
	var (
		id, createdAt                                  string
		npsScore                                       sql.NullInt64
		ticketID, ticketPriority, userID               sql.NullString
		sentiment, topics, urgency, intent, summary    sql.NullString
		confidence                                     sql.NullFloat64
		profileUserID, email, subscriptionType         sql.NullString
		companyName, industry, signupDate, traits, emb sql.NullString
		mrr                                            sql.NullFloat64
	)
	dest := []any{
		&id, &row.text, &row.source, &npsScore, &ticketID, &ticketPriority, &userID, &createdAt,
		&sentiment, &topics, &urgency, &intent, &summary, &confidence,
		&profileUserID, &email, &subscriptionType, &mrr, &companyName, &industry, &signupDate, &traits,
	}
	if withEmbedding {
		dest = append(dest, &emb)
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}

	var err error
	if row.id, err = uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid stored id %q: %w", id, err)
	}
	if row.createdAt, err = parseSQLiteTime(createdAt); err != nil {
		return err
	}
	if npsScore.Valid {
		n := int(npsScore.Int64)
		row.npsScore = &n
	}
	row.ticketID = nullString(ticketID)
	row.ticketPriority = nullString(ticketPriority)
	row.userID = nullString(userID)
	row.sentiment = nullString(sentiment)
	row.urgency = nullString(urgency)
	row.intent = nullString(intent)
	row.summary = nullString(summary)
	if confidence.Valid {
		row.confidence = &confidence.Float64
	}
	if topics.Valid {
		if err := json.Unmarshal([]byte(topics.String), &row.topics); err != nil {
			return fmt.Errorf("invalid stored topics: %w", err)
		}
	}

	row.profileUserID = nullString(profileUserID)
	row.email = nullString(email)
	row.subscriptionType = nullString(subscriptionType)
	row.companyName = nullString(companyName)
	row.industry = nullString(industry)
	if mrr.Valid {
		row.mrr = &mrr.Float64
	}
	if signupDate.Valid {
		t, err := parseSQLiteTime(signupDate.String)
		if err != nil {
			return err
		}
		row.signupDate = &t
	}
	if traits.Valid {
		row.customTraits = []byte(traits.String)
	}
	if emb.Valid {
		if err := json.Unmarshal([]byte(emb.String), &row.embedding); err != nil {
			return fmt.Errorf("invalid stored embedding: %w", err)
		}
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *feedbackRow) toItem() (*models.FeedbackItem, error) {
	item := &models.FeedbackItem{
		ID:             r.id,
		Text:           r.text,
		Source:         models.FeedbackSource(r.source),
		NPSScore:       r.npsScore,
		TicketID:       r.ticketID,
		TicketPriority: r.ticketPriority,
		UserID:         r.userID,
		CreatedAt:      r.createdAt.UTC(),
		Embedding:      r.embedding,
	}

	if r.sentiment != nil {
		c := &models.Classification{
			Sentiment: models.Sentiment(*r.sentiment),
			Topics:    r.topics,
			Urgency:   models.Urgency(deref(r.urgency)),
			Intent:    models.Intent(deref(r.intent)),
			Summary:   deref(r.summary),
		}
		if r.confidence != nil {
			c.Confidence = *r.confidence
		}
		item.Classification = c
	}

	if r.profileUserID != nil {
		p := &models.UserProfile{
			UserID:           *r.profileUserID,
			Email:            deref(r.email),
			SubscriptionType: models.SubscriptionType(deref(r.subscriptionType)),
			CompanyName:      deref(r.companyName),
			Industry:         deref(r.industry),
			SignupDate:       r.signupDate,
			MRR:              r.mrr,
		}
		if len(r.customTraits) > 0 {
			if err := json.Unmarshal(r.customTraits, &p.CustomTraits); err != nil {
				return nil, fmt.Errorf("invalid stored custom traits: %w", err)
			}
			if len(p.CustomTraits) == 0 {
				p.CustomTraits = nil
			}
		}
		item.UserProfile = p
	}

	return item, nil
}

func (d dialect) scanProfile(rows rowScanner) (*models.UserProfile, error) {
	var (
		p      models.UserProfile
		sub    string
		traits []byte
	)
	if d == dialectSQLite {
		var signup sql.NullString
		var rawTraits string
		if err := rows.Scan(&p.UserID, &p.Email, &sub, &p.MRR, &p.CompanyName, &p.Industry, &signup, &rawTraits); err != nil {
			return nil, fmt.Errorf("failed to scan user profile: %w", err)
		}
		if signup.Valid {
			t, err := parseSQLiteTime(signup.String)
			if err != nil {
				return nil, err
			}
			p.SignupDate = &t
		}
		traits = []byte(rawTraits)
	} else {
		if err := rows.Scan(&p.UserID, &p.Email, &sub, &p.MRR, &p.CompanyName, &p.Industry, &p.SignupDate, &traits); err != nil {
			return nil, fmt.Errorf("failed to scan user profile: %w", err)
		}
	}
	p.SubscriptionType = models.SubscriptionType(sub)

	if len(traits) > 0 {
		if err := json.Unmarshal(traits, &p.CustomTraits); err != nil {
			return nil, fmt.Errorf("invalid stored custom traits: %w", err)
		}
		if len(p.CustomTraits) == 0 {
			p.CustomTraits = nil
		}
	}
	return &p, nil
}
