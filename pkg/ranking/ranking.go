// Package ranking orders stored feedback by similarity to a query embedding.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Candidate is a stored item eligible for ranking.
type Candidate struct {
	ID        string
	Embedding []float32
}

// Match is a ranked candidate with its cosine similarity to the query.
type Match struct {
	ID         string
	Similarity float32
}

// Ranker returns the nearest candidates to a query embedding, most similar first.
type Ranker interface {
	Rank(ctx context.Context, query []float32, candidates []Candidate, limit int) ([]Match, error)
}

var errNoEmbeddingFunc = errors.New("ranking collections only accept precomputed embeddings")

type chromemRanker struct {
	logger *zap.Logger
}

// NewChromemRanker creates a Ranker backed by an in-memory chromem collection
// built per call from the SQL-filtered candidates.
func NewChromemRanker(logger *zap.Logger) Ranker {
	return &chromemRanker{logger: logger.Named("ranking")}
}

// Rank implements Ranker. Candidates whose dimension differs from the query
// (e.g. embedded before a model change) are skipped.
func (r *chromemRanker) Rank(ctx context.Context, query []float32, candidates []Candidate, limit int) ([]Match, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if limit <= 0 || len(candidates) == 0 {
		return []Match{}, nil
	}

	docs := make([]chromem.Document, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		if len(c.Embedding) != len(query) || isZero(c.Embedding) {
			skipped++
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.ID,
			Embedding: c.Embedding,
		})
	}
	if skipped > 0 {
		r.logger.Debug("Skipped candidates with incompatible embeddings",
			zap.Int("skipped", skipped),
			zap.Int("query_dims", len(query)))
	}
	if len(docs) == 0 {
		return []Match{}, nil
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection("feedback", nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return nil, fmt.Errorf("create ranking collection: %w", err)
	}

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add ranking candidates: %w", err)
	}

	// chromem requires nResults <= document count
	n := limit
	if n > collection.Count() {
		n = collection.Count()
	}

	results, err := collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query ranking collection: %w", err)
	}

	matches := make([]Match, len(results))
	for i, res := range results {
		matches[i] = Match{ID: res.ID, Similarity: res.Similarity}
	}
	return matches, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
