package delivery

import (
	"context"
	"sync/atomic"

	"notification-workers/internal/models"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds bulk pools when no size is configured.
const DefaultConcurrency = 5

// RunBulk calls fn for every index below n through a pool of at most limit
// goroutines. Each call is independent; failures are only counted.
func RunBulk(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) models.BulkOutcome {
	if limit < 1 {
		limit = DefaultConcurrency
	}

	var (
		g                 errgroup.Group
		succeeded, failed atomic.Int64
	)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if fn(ctx, i) != nil {
				failed.Add(1)
			} else {
				succeeded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return models.BulkOutcome{
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Total:     n,
	}
}
