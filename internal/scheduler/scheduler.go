// Package scheduler runs independent work items under a concurrency bound,
// optionally spreading dispatch times across a wall-clock window so that
// bursts of LLM requests do not all land at once.
package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config bounds a pool of workers.
type Config struct {
	// Limit is the maximum number of items in flight at once.
	// Values below 1 are treated as 1.
	Limit int

	// SpreadWindow, when positive, delays each item's start by a uniform
	// random duration in [0, SpreadWindow). This flattens request spikes
	// against rate-limited providers.
	SpreadWindow time.Duration
}

func (c Config) limit() int {
	if c.Limit < 1 {
		return 1
	}
	return c.Limit
}

// Result pairs one input item with its outcome. Failures are isolated:
// one item's error never aborts its siblings.
type Result[In, Out any] struct {
	Item In
	Out  Out
	Err  error
}

// Run executes fn over every item under the pool bounds and returns the
// results indexed like items. It stops dispatching new items once ctx is
// cancelled; already-dispatched items run to completion.
func Run[In, Out any](ctx context.Context, cfg Config, items []In, fn func(context.Context, In) (Out, error)) []Result[In, Out] {
	results := make([]Result[In, Out], len(items))

	sem := make(chan struct{}, cfg.limit())
	var wg sync.WaitGroup

	log := logrus.WithField("component", "scheduler")

	for i, item := range items {
		if ctx.Err() != nil {
			for j := i; j < len(items); j++ {
				results[j] = Result[In, Out]{Item: items[j], Err: ctx.Err()}
			}
			break
		}

		wg.Add(1)
		go func(idx int, it In) {
			defer wg.Done()

			if err := spread(ctx, cfg.SpreadWindow); err != nil {
				results[idx] = Result[In, Out]{Item: it, Err: err}
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = Result[In, Out]{Item: it, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			out, err := fn(ctx, it)
			if err != nil {
				log.WithError(err).Debug("work item failed")
			}
			results[idx] = Result[In, Out]{Item: it, Out: out, Err: err}
		}(i, item)
	}

	wg.Wait()
	return results
}

// Errs returns the non-nil errors from a result set.
func Errs[In, Out any](results []Result[In, Out]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// spread sleeps a uniform random duration in [0, window), honoring ctx.
func spread(ctx context.Context, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	delay := time.Duration(rand.Int64N(int64(window)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
