// Package workerpool fans keyed tasks out over a bounded ants pool and
// collects the successful results.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc/panics"
)

const DefaultMaxConcurrency = 5

type Options[K comparable] struct {
	// MaxConcurrency caps in-flight tasks. Zero or negative means DefaultMaxConcurrency.
	MaxConcurrency int
	// OnFailure is invoked once per failed key, from the worker goroutine.
	OnFailure func(key K, err error)
}

type Summary struct {
	Submitted int
	Succeeded int
	Failed    int
}

// Collect runs task for every key and returns the results of the tasks that
// succeeded, in completion order. A failing or panicking task never aborts
// its siblings. The returned error is reserved for pool setup and submission.
func Collect[K comparable, V any](
	ctx context.Context,
	keys []K,
	opts Options[K],
	task func(ctx context.Context, key K) (V, error),
) ([]V, Summary, error) {
	if len(keys) == 0 {
		return []V{}, Summary{}, nil
	}

	size := opts.MaxConcurrency
	if size <= 0 {
		size = DefaultMaxConcurrency
	}

	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu        sync.Mutex
		results   = make([]V, 0, len(keys))
		succeeded atomic.Int32
		failed    atomic.Int32
		workers   sync.WaitGroup
	)

	for _, key := range keys {
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			value, taskErr := runGuarded(ctx, key, task)
			if taskErr != nil {
				failed.Add(1)
				if opts.OnFailure != nil {
					opts.OnFailure(key, taskErr)
				}
				return
			}

			succeeded.Add(1)
			mu.Lock()
			results = append(results, value)
			mu.Unlock()
		}); err != nil {
			workers.Done()
			workers.Wait()
			return nil, Summary{}, fmt.Errorf("submit task to worker pool: %w", err)
		}
	}

	workers.Wait()

	return results, Summary{
		Submitted: len(keys),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}, nil
}

func runGuarded[K comparable, V any](
	ctx context.Context,
	key K,
	task func(ctx context.Context, key K) (V, error),
) (V, error) {
	var (
		value   V
		taskErr error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		value, taskErr = task(ctx, key)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		var zero V
		return zero, fmt.Errorf("task for key %v panicked: %w", key, recovered.AsError())
	}
	return value, taskErr
}
