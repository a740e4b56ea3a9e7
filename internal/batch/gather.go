// Package batch fans mutations out against the store and joins on their
// settlement. Completions are delivered on the event loop.
package batch

import (
	"context"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/mmcdole/blobnav/internal/loop"
)

// Outcome is the settled result of one item. A failed item is still settled.
type Outcome[T any] struct {
	Item T
	Err  error
}

// Options tunes a Gather call.
type Options struct {
	// MaxConcurrency bounds in-flight operations; 0 means unbounded.
	MaxConcurrency int
}

// Gather runs op for every item concurrently and returns immediately. Each
// outcome is posted to onItem as it settles; once all have settled,
// onSettled is posted exactly once with the outcomes in item order. An empty
// batch settles immediately. Either callback may be nil. A panic in op
// settles that item with the panic as its error.
func Gather[T any](
	ctx context.Context,
	poster loop.Poster,
	items []T,
	opts Options,
	op func(ctx context.Context, item T) error,
	onItem func(Outcome[T]),
	onSettled func([]Outcome[T]),
) {
	outcomes := make([]Outcome[T], len(items))

	go func() {
		p := pool.New()
		if opts.MaxConcurrency > 0 {
			p = p.WithMaxGoroutines(opts.MaxConcurrency)
		}
		for i, item := range items {
			i, item := i, item
			p.Go(func() {
				var err error
				if r := panics.Try(func() { err = op(ctx, item) }); r != nil {
					err = r.AsError()
				}
				outcomes[i] = Outcome[T]{Item: item, Err: err}
				if onItem != nil {
					out := outcomes[i]
					poster.Post(func() { onItem(out) })
				}
			})
		}
		p.Wait()

		// Every onItem post happened before Wait returned, so the settle
		// callback runs after all of them.
		poster.Post(func() {
			if onSettled != nil {
				onSettled(outcomes)
			}
		})
	}()
}

// Failed returns the outcomes that carry an error.
func Failed[T any](outcomes []Outcome[T]) []Outcome[T] {
	var out []Outcome[T]
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}
