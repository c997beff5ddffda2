package app

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEachOrdered runs fn for every index on at most workers goroutines.
// emit is called from the calling goroutine for each index in order, as soon
// as that index has finished.
func forEachOrdered(ctx context.Context, n, workers int, fn func(ctx context.Context, i int), emit func(i int)) error {
	if workers < 1 {
		workers = 1
	}

	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := 0; i < n; i++ {
			i := i
			g.Go(func() error {
				defer close(done[i])
				fn(gctx, i)
				return nil
			})
		}
	}()

	for i := 0; i < n; i++ {
		<-done[i]
		emit(i)
	}

	<-submitted
	return g.Wait()
}
