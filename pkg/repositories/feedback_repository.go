package repositories

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/database"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/ranking"
)

// MaxSimilarityCandidates caps how many of the newest filtered rows are ranked per search.
const MaxSimilarityCandidates = 2000

// FeedbackRepository persists feedback items and user profiles.
type FeedbackRepository interface {
	Insert(ctx context.Context, item *models.FeedbackItem) error
	UpsertProfile(ctx context.Context, profile *models.UserProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.FeedbackItem, error)
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)

	// Query returns one page of items matching filters, newest first, plus the total match count.
	Query(ctx context.Context, filters models.FeedbackFilters) ([]*models.FeedbackItem, int, error)

	// SimilaritySearch ranks embedded items matching filters by similarity to embedding.
	// The count is every embedded item matching filters, not just the ranked page.
	// Items without an embedding are never returned.
	SimilaritySearch(ctx context.Context, embedding []float32, filters models.FeedbackFilters, limit int) ([]*models.FeedbackItem, int, error)

	// UpdateClassification stores a manual classification with confidence 1.0.
	UpdateClassification(ctx context.Context, id uuid.UUID, c *models.Classification) error

	// SetClassification stores a model classification and, when non-nil, a new embedding.
	SetClassification(ctx context.Context, id uuid.UUID, c *models.Classification, embedding []float32) error

	AggregateStats(ctx context.Context, days int) (*models.Stats, error)
	VolumeOverTime(ctx context.Context, grain models.Grain, daysBack int, filters models.FeedbackFilters) ([]models.VolumeBucket, error)

	// ListForReclassification pages through items oldest first.
	ListForReclassification(ctx context.Context, onlyUnclassified bool, limit, offset int) ([]*models.FeedbackItem, error)
}

type feedbackRepository struct {
	db     runner
	d      dialect
	ranker ranking.Ranker
	now    func() time.Time
	logger *zap.Logger
}

// NewPostgresFeedbackRepository creates a FeedbackRepository over a pgx pool.
func NewPostgresFeedbackRepository(db *database.DB, ranker ranking.Ranker, logger *zap.Logger) FeedbackRepository {
	return &feedbackRepository{
		db:     pgxRunner{db: db},
		d:      dialectPostgres,
		ranker: ranker,
		now:    time.Now,
		logger: logger.Named("feedback-repository"),
	}
}

// NewSQLiteFeedbackRepository creates a FeedbackRepository over a local SQLite file.
func NewSQLiteFeedbackRepository(db *database.SQLiteDB, ranker ranking.Ranker, logger *zap.Logger) FeedbackRepository {
	return &feedbackRepository{
		db:     sqlRunner{db: db},
		d:      dialectSQLite,
		ranker: ranker,
		now:    time.Now,
		logger: logger.Named("feedback-repository"),
	}
}

var _ FeedbackRepository = (*feedbackRepository)(nil)

func (r *feedbackRepository) Insert(ctx context.Context, item *models.FeedbackItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = r.now().UTC()
	}

	b := newFilterBuilder(r.d)
	values := []string{
		b.arg(r.d.idArg(item.ID)),
		b.arg(item.Text),
		b.arg(string(item.Source)),
		b.arg(item.NPSScore),
		b.arg(item.TicketID),
		b.arg(item.TicketPriority),
		b.arg(item.UserID),
		b.arg(r.d.timeArg(item.CreatedAt)),
	}

	var sentiment, urgency, intent, summary, classifiedAt any
	var topics, confidence any
	if c := item.Classification; c != nil {
		sentiment, urgency, intent, summary = string(c.Sentiment), string(c.Urgency), string(c.Intent), c.Summary
		topics = r.d.topicsArg(c.Topics)
		confidence = c.Confidence
		classifiedAt = r.d.timeArg(r.now())
	}
	values = append(values,
		b.arg(sentiment), b.arg(topics), b.arg(urgency), b.arg(intent), b.arg(summary),
		b.arg(confidence), b.arg(classifiedAt), b.arg(r.d.embeddingArg(item.Embedding)))

	query := fmt.Sprintf(`
		INSERT INTO feedback_items (
			id, text, source, nps_score, ticket_id, ticket_priority, user_id, created_at,
			sentiment, topics, urgency, intent, summary, confidence, classified_at, embedding
		) VALUES (%s)`, joinPlaceholders(values))

	if _, err := r.db.exec(ctx, query, b.args); err != nil {
		return fmt.Errorf("failed to insert feedback item: %w", err)
	}
	return nil
}

func (r *feedbackRepository) UpsertProfile(ctx context.Context, profile *models.UserProfile) error {
	traits, err := traitsArg(profile.CustomTraits)
	if err != nil {
		return err
	}
	now := r.d.timeArg(r.now())

	b := newFilterBuilder(r.d)
	values := []string{
		b.arg(profile.UserID),
		b.arg(profile.Email),
		b.arg(string(profile.SubscriptionType)),
		fmt.Sprintf("COALESCE(CAST(%s AS DOUBLE PRECISION), 0)", b.arg(profile.MRR)),
		b.arg(profile.CompanyName),
		b.arg(profile.Industry),
		b.arg(r.d.optionalTimeArg(profile.SignupDate)),
		b.arg(traits),
		b.arg(now),
		b.arg(now),
	}

	// Empty incoming fields keep the stored value; traits are merged.
	// A nil MRR keeps the stored value, an explicit 0 clears it.
	mrr := b.arg(profile.MRR)
	query := fmt.Sprintf(`
		INSERT INTO user_profiles (
			user_id, email, subscription_type, mrr, company_name, industry,
			signup_date, custom_traits, created_at, updated_at
		) VALUES (%s)
		ON CONFLICT (user_id) DO UPDATE SET
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE user_profiles.email END,
			subscription_type = CASE WHEN excluded.subscription_type <> '' THEN excluded.subscription_type ELSE user_profiles.subscription_type END,
			mrr = COALESCE(CAST(%s AS DOUBLE PRECISION), user_profiles.mrr),
			company_name = CASE WHEN excluded.company_name <> '' THEN excluded.company_name ELSE user_profiles.company_name END,
			industry = CASE WHEN excluded.industry <> '' THEN excluded.industry ELSE user_profiles.industry END,
			signup_date = COALESCE(excluded.signup_date, user_profiles.signup_date),
			custom_traits = %s,
			updated_at = excluded.updated_at`,
		joinPlaceholders(values), mrr, r.d.mergeTraits())

	if _, err := r.db.exec(ctx, query, b.args); err != nil {
		return fmt.Errorf("failed to upsert user profile: %w", err)
	}
	return nil
}

func (r *feedbackRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FeedbackItem, error) {
	b := newFilterBuilder(r.d)
	b.add(fmt.Sprintf("f.id = %s", b.arg(r.d.idArg(id))))

	items, err := r.list(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, selectColumns(true), feedbackFrom, b.where()), b.args, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback item: %w", err)
	}
	if len(items) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return items[0], nil
}

func (r *feedbackRepository) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	b := newFilterBuilder(r.d)
	query := fmt.Sprintf(`
		SELECT user_id, email, subscription_type, mrr, company_name, industry, signup_date, custom_traits
		FROM user_profiles
		WHERE user_id = %s`, b.arg(userID))

	var profiles []*models.UserProfile
	err := r.db.query(ctx, query, b.args, func(rows rowScanner) error {
		p, err := r.d.scanProfile(rows)
		if err != nil {
			return err
		}
		profiles = append(profiles, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return profiles[0], nil
}

func (r *feedbackRepository) Query(ctx context.Context, filters models.FeedbackFilters) ([]*models.FeedbackItem, int, error) {
	limit, offset := filters.Page()

	b := newFilterBuilder(r.d)
	b.applyFilters(filters, r.now())
	where := b.where()

	// Count
	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, countFrom(filters), where)
	if err := r.db.queryRow(ctx, countQuery, b.args, &total); err != nil {
		return nil, 0, fmt.Errorf("failed to count feedback: %w", err)
	}

	// Data
	dataQuery := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY f.created_at DESC, f.id
		LIMIT %s OFFSET %s`, selectColumns(false), feedbackFrom, where, b.arg(limit), b.arg(offset))

	items, err := r.list(ctx, dataQuery, b.args, false)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query feedback: %w", err)
	}
	return items, total, nil
}

func (r *feedbackRepository) SimilaritySearch(ctx context.Context, embedding []float32, filters models.FeedbackFilters, limit int) ([]*models.FeedbackItem, int, error) {
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}

	b := newFilterBuilder(r.d)
	b.add("f.embedding IS NOT NULL")
	b.applyFilters(filters, r.now())
	where := b.where()
	countArgs := slices.Clone(b.args)

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY f.created_at DESC
		LIMIT %s`, selectColumns(true), feedbackFrom, where, b.arg(MaxSimilarityCandidates))

	candidates, err := r.list(ctx, query, b.args, true)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load similarity candidates: %w", err)
	}

	total := len(candidates)
	if total >= MaxSimilarityCandidates {
		countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, countFrom(filters), where)
		if err := r.db.queryRow(ctx, countQuery, countArgs, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to count similarity candidates: %w", err)
		}
	}

	byID := make(map[string]*models.FeedbackItem, len(candidates))
	pool := make([]ranking.Candidate, 0, len(candidates))
	for _, item := range candidates {
		id := item.ID.String()
		byID[id] = item
		pool = append(pool, ranking.Candidate{ID: id, Embedding: item.Embedding})
	}

	matches, err := r.ranker.Rank(ctx, embedding, pool, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to rank feedback: %w", err)
	}

	results := make([]*models.FeedbackItem, 0, len(matches))
	for _, m := range matches {
		item, ok := byID[m.ID]
		if !ok {
			continue
		}
		similarity := m.Similarity
		item.Similarity = &similarity
		item.Embedding = nil
		results = append(results, item)
	}

	r.logger.Debug("Similarity search",
		zap.Int("candidates", len(candidates)),
		zap.Int("total", total),
		zap.Int("results", len(results)))
	return results, total, nil
}

func (r *feedbackRepository) UpdateClassification(ctx context.Context, id uuid.UUID, c *models.Classification) error {
	manual := *c
	manual.Confidence = models.ManualConfidence
	return r.writeClassification(ctx, id, &manual, nil)
}

func (r *feedbackRepository) SetClassification(ctx context.Context, id uuid.UUID, c *models.Classification, embedding []float32) error {
	return r.writeClassification(ctx, id, c, embedding)
}

func (r *feedbackRepository) writeClassification(ctx context.Context, id uuid.UUID, c *models.Classification, embedding []float32) error {
	b := newFilterBuilder(r.d)
	query := fmt.Sprintf(`
		UPDATE feedback_items
		SET sentiment = %s, topics = %s, urgency = %s, intent = %s, summary = %s,
		    confidence = %s, classified_at = %s, embedding = COALESCE(%s, embedding)
		WHERE id = %s`,
		b.arg(string(c.Sentiment)),
		b.arg(r.d.topicsArg(c.Topics)),
		b.arg(string(c.Urgency)),
		b.arg(string(c.Intent)),
		b.arg(c.Summary),
		b.arg(c.Confidence),
		b.arg(r.d.timeArg(r.now())),
		b.arg(r.d.embeddingArg(embedding)),
		b.arg(r.d.idArg(id)),
	)

	affected, err := r.db.exec(ctx, query, b.args)
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *feedbackRepository) AggregateStats(ctx context.Context, days int) (*models.Stats, error) {
	stats := models.NewStats(days)

	filters := models.FeedbackFilters{Days: days}
	b := newFilterBuilder(r.d)
	b.applyFilters(filters, r.now())
	where := b.where()
	from := countFrom(filters)

	var avg *float64
	totalsQuery := fmt.Sprintf(`
		SELECT COUNT(*), AVG(f.nps_score)
		FROM %s WHERE %s`, from, where)
	if err := r.db.queryRow(ctx, totalsQuery, b.args, &stats.TotalCount, &avg); err != nil {
		return nil, fmt.Errorf("failed to compute totals: %w", err)
	}
	stats.AvgNPS = avg

	breakdowns := []struct {
		expr string
		into map[string]int
	}{
		{"COALESCE(f.sentiment, '" + models.UnclassifiedLabel + "')", stats.BySentiment},
		{"f.source", stats.BySource},
		{"COALESCE(f.urgency, '" + models.UnclassifiedLabel + "')", stats.ByUrgency},
		{"COALESCE(f.intent, '" + models.UnclassifiedLabel + "')", stats.ByIntent},
	}
	for _, bd := range breakdowns {
		query := fmt.Sprintf(`
			SELECT %s AS label, COUNT(*)
			FROM %s WHERE %s
			GROUP BY 1`, bd.expr, from, where)
		if err := r.countInto(ctx, query, b.args, bd.into); err != nil {
			return nil, fmt.Errorf("failed to compute breakdown: %w", err)
		}
	}

	join, column := r.d.topicJoin()
	topicQuery := fmt.Sprintf(`
		SELECT %s AS label, COUNT(*)
		FROM %s %s
		WHERE %s
		GROUP BY 1`, column, from, join, where)
	if err := r.countInto(ctx, topicQuery, b.args, stats.ByTopic); err != nil {
		return nil, fmt.Errorf("failed to compute topic breakdown: %w", err)
	}

	return stats, nil
}

func (r *feedbackRepository) countInto(ctx context.Context, query string, args []any, into map[string]int) error {
	return r.db.query(ctx, query, args, func(rows rowScanner) error {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return err
		}
		into[label] += count
		return nil
	})
}

func (r *feedbackRepository) VolumeOverTime(ctx context.Context, grain models.Grain, daysBack int, filters models.FeedbackFilters) ([]models.VolumeBucket, error) {
	if !grain.Valid() {
		return nil, apperrors.NewValidationError("grain", "invalid grain %q", grain)
	}
	filters.Days = daysBack

	b := newFilterBuilder(r.d)
	b.applyFilters(filters, r.now())

	buckets := map[time.Time]*models.VolumeBucket{}
	add := func(at time.Time, sentiment, source string, count int) {
		at = grain.Truncate(at)
		bucket, ok := buckets[at]
		if !ok {
			bucket = &models.VolumeBucket{
				Bucket:      at,
				BySentiment: map[string]int{},
				BySource:    map[string]int{},
			}
			buckets[at] = bucket
		}
		bucket.Total += count
		bucket.BySentiment[sentiment] += count
		bucket.BySource[source] += count
	}

	var err error
	if r.d == dialectPostgres {
		query := fmt.Sprintf(`
			SELECT date_trunc(%s, f.created_at AT TIME ZONE 'UTC') AS bucket,
			       COALESCE(f.sentiment, '%s') AS sentiment, f.source, COUNT(*)
			FROM %s WHERE %s
			GROUP BY 1, 2, 3`,
			b.arg(string(grain)), models.UnclassifiedLabel, countFrom(filters), b.where())
		err = r.db.query(ctx, query, b.args, func(rows rowScanner) error {
			var at time.Time
			var sentiment, source string
			var count int
			if err := rows.Scan(&at, &sentiment, &source, &count); err != nil {
				return err
			}
			add(at, sentiment, source, count)
			return nil
		})
	} else {
		query := fmt.Sprintf(`
			SELECT f.created_at, COALESCE(f.sentiment, '%s'), f.source
			FROM %s WHERE %s`, models.UnclassifiedLabel, countFrom(filters), b.where())
		err = r.db.query(ctx, query, b.args, func(rows rowScanner) error {
			var createdAt, sentiment, source string
			if err := rows.Scan(&createdAt, &sentiment, &source); err != nil {
				return err
			}
			at, err := parseSQLiteTime(createdAt)
			if err != nil {
				return err
			}
			add(at, sentiment, source, 1)
			return nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compute volume: %w", err)
	}

	result := make([]models.VolumeBucket, 0, len(buckets))
	for _, bucket := range buckets {
		result = append(result, *bucket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Bucket.Before(result[j].Bucket) })
	return result, nil
}

func (r *feedbackRepository) ListForReclassification(ctx context.Context, onlyUnclassified bool, limit, offset int) ([]*models.FeedbackItem, error) {
	b := newFilterBuilder(r.d)
	if onlyUnclassified {
		b.add("f.sentiment IS NULL")
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY f.created_at ASC, f.id
		LIMIT %s OFFSET %s`, selectColumns(false), feedbackFrom, b.where(), b.arg(limit), b.arg(offset))

	items, err := r.list(ctx, query, b.args, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback for reclassification: %w", err)
	}
	return items, nil
}

func (r *feedbackRepository) list(ctx context.Context, query string, args []any, withEmbedding bool) ([]*models.FeedbackItem, error) {
	items := []*models.FeedbackItem{}
	err := r.db.query(ctx, query, args, func(rows rowScanner) error {
		item, err := r.d.scanFeedback(rows, withEmbedding)
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func joinPlaceholders(values []string) string {
	return strings.Join(values, ", ")
}
