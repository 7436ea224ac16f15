package validator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanOut runs fn(0..n-1) on at most limit goroutines and waits for all of
// them. Calls see a context that is not cancelled with ctx, so dispatched
// RPCs end by their own timeouts. If ctx is cancelled first, fanOut stops
// dispatching and returns ctx.Err() without waiting; the caller must then
// discard whatever fn wrote.
func fanOut(ctx context.Context, n, limit int, fn func(ctx context.Context, i int)) error {
	callCtx := context.WithoutCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(limit)
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				fn(callCtx, i)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
