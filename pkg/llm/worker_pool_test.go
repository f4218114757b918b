package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())

	var running, peak atomic.Int32
	items := make([]WorkItem[int], 6)
	for i := range items {
		items[i] = WorkItem[int]{
			ID: fmt.Sprintf("item-%d", i),
			Execute: func(ctx context.Context) (int, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return i * 10, nil
			},
		}
	}

	var progressCalls atomic.Int32
	results := Process(context.Background(), pool, items, func(completed, total int) {
		progressCalls.Add(1)
		assert.Equal(t, 6, total)
	})

	require.Len(t, results, 6)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("item-%d", i), r.ID)
		assert.Equal(t, i*10, r.Result)
		assert.NoError(t, r.Err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(6), progressCalls.Load())
}

func TestWorkerPool_FailuresDoNotStopOthers(t *testing.T) {
	pool := NewWorkerPool(DefaultWorkerPoolConfig(), zap.NewNop())
	boom := errors.New("boom")

	results := Process(context.Background(), pool, []WorkItem[string]{
		{ID: "a", Execute: func(ctx context.Context) (string, error) { return "ok", nil }},
		{ID: "b", Execute: func(ctx context.Context) (string, error) { return "", boom }},
		{ID: "c", Execute: func(ctx context.Context) (string, error) { return "ok", nil }},
	}, nil)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, "ok", results[2].Result)
}

func TestWorkerPool_CanceledContext(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 1}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	items := make([]WorkItem[struct{}], 5)
	for i := range items {
		items[i] = WorkItem[struct{}]{
			ID: fmt.Sprint(i),
			Execute: func(ctx context.Context) (struct{}, error) {
				ran.Add(1)
				return struct{}{}, ctx.Err()
			},
		}
	}

	results := Process(ctx, pool, items, nil)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestWorkerPool_Empty(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{}, zap.NewNop())
	assert.Nil(t, Process[int](context.Background(), pool, nil, nil))
	assert.Equal(t, 4, pool.maxConcurrent)
}
