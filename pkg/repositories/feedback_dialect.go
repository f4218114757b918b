package repositories

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

// dialect captures the SQL differences between the PostgreSQL and SQLite stores.
type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// sqliteTimeFormat is fixed-width so lexical comparison matches time order.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

func (d dialect) String() string {
	if d == dialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

func (d dialect) param(n int) string {
	if d == dialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

func (d dialect) timeArg(t time.Time) any {
	if d == dialectSQLite {
		return t.UTC().Format(sqliteTimeFormat)
	}
	return t.UTC()
}

func (d dialect) optionalTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.timeArg(*t)
}

func (d dialect) idArg(id uuid.UUID) any {
	if d == dialectSQLite {
		return id.String()
	}
	return id
}

func (d dialect) topicsArg(topics []string) any {
	if topics == nil {
		return nil
	}
	if d == dialectSQLite {
		b, _ := json.Marshal(topics)
		return string(b)
	}
	return topics
}

func (d dialect) embeddingArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	if d == dialectSQLite {
		b, _ := json.Marshal(v)
		return string(b)
	}
	return v
}

func traitsArg(traits map[string]any) (string, error) {
	if traits == nil {
		return "{}", nil
	}
	b, err := json.Marshal(traits)
	if err != nil {
		return "", fmt.Errorf("failed to encode custom traits: %w", err)
	}
	return string(b), nil
}

// topicJoin returns a join clause producing one row per topic and the column holding it.
func (d dialect) topicJoin() (join, column string) {
	if d == dialectSQLite {
		return "CROSS JOIN json_each(f.topics) AS t", "t.value"
	}
	return "CROSS JOIN LATERAL unnest(f.topics) AS t(topic)", "t.topic"
}

// mergeTraits returns the expression merging stored and incoming custom traits on upsert.
func (d dialect) mergeTraits() string {
	if d == dialectSQLite {
		return "json_patch(user_profiles.custom_traits, excluded.custom_traits)"
	}
	return "user_profiles.custom_traits || excluded.custom_traits"
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeFormat, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// filterBuilder accumulates WHERE conditions and their positional args.
type filterBuilder struct {
	d          dialect
	conditions []string
	args       []any
}

func newFilterBuilder(d dialect) *filterBuilder {
	return &filterBuilder{d: d}
}

// arg appends v and returns its placeholder.
func (b *filterBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.param(len(b.args))
}

func (b *filterBuilder) add(condition string) {
	b.conditions = append(b.conditions, condition)
}

// in adds "column matches any of values". Empty values add nothing.
func (b *filterBuilder) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	b.add(b.inExpr(column, values))
}

func (b *filterBuilder) inExpr(column string, values []string) string {
	if b.d == dialectPostgres {
		return fmt.Sprintf("%s = ANY(%s)", column, b.arg(values))
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = b.arg(v)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}

// anyTopic adds "item carries at least one of topics".
func (b *filterBuilder) anyTopic(topics []string) {
	if len(topics) == 0 {
		return
	}
	if b.d == dialectPostgres {
		b.add(fmt.Sprintf("f.topics && %s::text[]", b.arg(topics)))
		return
	}
	b.add(fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(f.topics) AS ft WHERE %s)", b.inExpr("ft.value", topics)))
}

func (b *filterBuilder) where() string {
	if len(b.conditions) == 0 {
		return "TRUE"
	}
	return strings.Join(b.conditions, " AND ")
}

// applyFilters translates filters into conditions over feedback_items f and user_profiles p.
func (b *filterBuilder) applyFilters(f models.FeedbackFilters, now time.Time) {
	b.in("f.source", stringsOf(f.Sources))
	b.in("f.sentiment", stringsOf(f.Sentiments))
	b.in("f.urgency", stringsOf(f.Urgencies))
	b.in("f.intent", stringsOf(f.Intents))
	b.anyTopic(f.Topics)

	if f.ChurnOrNegative {
		b.add(fmt.Sprintf("(f.intent = %s OR f.sentiment = %s)",
			b.arg(string(models.IntentChurnRisk)), b.arg(string(models.SentimentNegative))))
	}

	b.in("p.subscription_type", stringsOf(f.SubscriptionTypes))
	b.in("p.industry", f.Industries)
	if f.MinMRR != nil {
		b.add(fmt.Sprintf("p.mrr >= %s", b.arg(*f.MinMRR)))
	}
	if f.MaxMRR != nil {
		b.add(fmt.Sprintf("p.mrr <= %s", b.arg(*f.MaxMRR)))
	}
	if f.MinNPS != nil {
		b.add(fmt.Sprintf("f.nps_score >= %s", b.arg(*f.MinNPS)))
	}
	if f.MaxNPS != nil {
		b.add(fmt.Sprintf("f.nps_score <= %s", b.arg(*f.MaxNPS)))
	}

	if since := f.Since(now); since != nil {
		b.add(fmt.Sprintf("f.created_at >= %s", b.arg(b.d.timeArg(*since))))
	}
	if f.StartDate != nil {
		b.add(fmt.Sprintf("f.created_at >= %s", b.arg(b.d.timeArg(*f.StartDate))))
	}
	if f.EndDate != nil {
		b.add(fmt.Sprintf("f.created_at <= %s", b.arg(b.d.timeArg(*f.EndDate))))
	}
}

func stringsOf[T ~string](values []T) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
