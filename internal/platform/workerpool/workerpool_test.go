package workerpool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect_PartialFailureKeepsSuccesses(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		failed []int
	)
	results, summary, err := Collect(context.Background(), []int{1, 2, 3, 4}, Options[int]{
		MaxConcurrency: 2,
		OnFailure: func(key int, err error) {
			mu.Lock()
			failed = append(failed, key)
			mu.Unlock()
		},
	}, func(_ context.Context, key int) (string, error) {
		if key%2 == 0 {
			return "", errors.New("status 500")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "ok"}, results)
	assert.Equal(t, Summary{Submitted: 4, Succeeded: 2, Failed: 2}, summary)
	sort.Ints(failed)
	assert.Equal(t, []int{2, 4}, failed)
}

func TestCollect_RespectsMaxConcurrency(t *testing.T) {
	t.Parallel()

	const limit = 3
	var inFlight, peak atomic.Int32

	keys := make([]int, 20)
	for i := range keys {
		keys[i] = i
	}

	results, summary, err := Collect(context.Background(), keys, Options[int]{MaxConcurrency: limit},
		func(_ context.Context, key int) (int, error) {
			current := inFlight.Add(1)
			for {
				seen := peak.Load()
				if current <= seen || peak.CompareAndSwap(seen, current) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return key, nil
		})

	require.NoError(t, err)
	assert.Len(t, results, len(keys))
	assert.Equal(t, len(keys), summary.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Positive(t, peak.Load())
}

func TestCollect_PanicIsContained(t *testing.T) {
	t.Parallel()

	var gotErr error
	results, summary, err := Collect(context.Background(), []string{"a", "b"}, Options[string]{
		OnFailure: func(_ string, err error) { gotErr = err },
	}, func(_ context.Context, key string) (string, error) {
		if key == "b" {
			panic("malformed document")
		}
		return key, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, results)
	assert.Equal(t, 1, summary.Failed)
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "malformed document")
}

func TestCollect_EmptyKeys(t *testing.T) {
	t.Parallel()

	called := false
	results, summary, err := Collect(context.Background(), nil, Options[int]{}, func(context.Context, int) (int, error) {
		called = true
		return 0, nil
	})

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, Summary{}, summary)
	assert.False(t, called)
}

func TestCollect_PassesContextThrough(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, summary, err := Collect(ctx, []int{1, 2}, Options[int]{}, func(ctx context.Context, _ int) (int, error) {
		return 0, ctx.Err()
	})

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 2, summary.Failed)
}
