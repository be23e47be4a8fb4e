package service

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSpacing is the pause Sequence callers use between calls to stay under provider
// rate limits.
const DefaultSpacing = time.Second

// Sequence calls fn for every item in order, at most one call per delay. It stops at the
// first error or when ctx is done and returns how many items completed.
func Sequence[T any](ctx context.Context, items []T, delay time.Duration, fn func(context.Context, T) error) (int, error) {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	lim := rate.NewLimiter(limit, 1)
	for i, item := range items {
		if err := lim.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return i, ctxErr
			}
			return i, err
		}
		if err := fn(ctx, item); err != nil {
			return i, err
		}
	}
	return len(items), nil
}
