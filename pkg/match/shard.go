package match

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// forEach calls fn for every index in [0, n), spread over contiguous chunks
// on up to workers goroutines. fn must only write to per-index state.
func forEach(ctx context.Context, n, workers int, fn func(i int)) error {
	if n == 0 {
		return ctx.Err()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				// Checked on entry to each chunk and every 256 items after.
				if i == lo || i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}
