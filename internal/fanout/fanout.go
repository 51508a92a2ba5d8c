// Package fanout provides the bounded parallel-for primitive shared by the ADM and PANS
// coders: a fixed worker budget, disjoint per-iteration output, first-error-wins semantics,
// and no locks or atomics in the caller's critical path.
package fanout

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Range calls fn(i) for every i in [0, n), one goroutine per call with at most GOMAXPROCS
// running at once. fn must only touch the output slice positions owned by i; Range itself
// performs no synchronization beyond waiting for all iterations to finish.
//
// If any call to fn returns an error, the remaining iterations still run; Range waits for
// all of them and returns the first error observed. Iteration order and goroutine count never affect
// the result a correct fn produces, matching the determinism guarantee each caller owes its
// own output.
func Range(n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}
