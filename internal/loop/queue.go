// Package loop provides the single-threaded event loop that owns all browser
// state. Work running elsewhere hands its continuation back with Post; one
// goroutine drains the queue, so callbacks never run concurrently.
package loop

import (
	"context"
	"sync"
)

// Poster schedules fn to run on the event loop.
type Poster interface {
	Post(fn func())
}

// Queue is an unbounded FIFO of callbacks. Post never blocks, so callbacks
// may safely post follow-up work.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	notify  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Post appends fn to the queue.
func (q *Queue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued callbacks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Next waits for and dequeues the next callback without running it.
func (q *Queue) Next(ctx context.Context) (func(), error) {
	for {
		if fn, ok := q.pop(); ok {
			return fn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, false
	}
	fn := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return fn, true
}

// Run drains the queue until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	for {
		fn, err := q.Next(ctx)
		if err != nil {
			return err
		}
		fn()
	}
}

// RunUntil drains the queue until cond holds (checked before each callback)
// or ctx is done.
func (q *Queue) RunUntil(ctx context.Context, cond func() bool) error {
	for !cond() {
		fn, err := q.Next(ctx)
		if err != nil {
			return err
		}
		fn()
	}
	return nil
}

// RunPending runs the callbacks that are already queued, including any they
// post, and returns how many ran.
func (q *Queue) RunPending() int {
	n := 0
	for {
		fn, ok := q.pop()
		if !ok {
			return n
		}
		fn()
		n++
	}
}
