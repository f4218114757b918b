package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChromemRanker_OrdersBySimilarity(t *testing.T) {
	r := NewChromemRanker(zap.NewNop())

	candidates := []Candidate{
		{ID: "far", Embedding: []float32{0, 1, 0}},
		{ID: "near", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "exact", Embedding: []float32{1, 0, 0}},
		{ID: "wrong-dims", Embedding: []float32{1, 0}},
		{ID: "zero", Embedding: []float32{0, 0, 0}},
	}

	matches, err := r.Rank(context.Background(), []float32{1, 0, 0}, candidates, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "exact", matches[0].ID)
	assert.Equal(t, "near", matches[1].ID)
	assert.Equal(t, "far", matches[2].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
	assert.Greater(t, matches[1].Similarity, matches[2].Similarity)
}

func TestChromemRanker_Limit(t *testing.T) {
	r := NewChromemRanker(zap.NewNop())

	candidates := []Candidate{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{0.5, 0.5}},
		{ID: "c", Embedding: []float32{0, 1}},
	}

	matches, err := r.Rank(context.Background(), []float32{0, 1}, candidates, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "c", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)
}

func TestChromemRanker_EmptyInputs(t *testing.T) {
	r := NewChromemRanker(zap.NewNop())

	matches, err := r.Rank(context.Background(), []float32{1}, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = r.Rank(context.Background(), nil, []Candidate{{ID: "a", Embedding: []float32{1}}}, 5)
	assert.Error(t, err)
}
