package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmcdole/blobnav/internal/domain"
)

// subscription re-runs its query whenever the store changes. Only the latest
// result set is kept for the reader; stale ones are replaced.
type subscription struct {
	store  *BlobStore
	query  domain.Query
	events chan domain.Event

	mu     sync.Mutex
	limit  int
	closed bool
}

// Subscribe implements domain.Store. The first page is pushed before it returns.
func (s *BlobStore) Subscribe(ctx context.Context, q domain.Query) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Constraint.IsRaw() {
		return nil, fmt.Errorf("subscribe %s: %w", q.Constraint.Raw, domain.ErrUnsupportedQuery)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	sub := &subscription{
		store:  s,
		query:  q,
		events: make(chan domain.Event, 1),
		limit:  limit,
	}

	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		return nil, fmt.Errorf("subscribe: %w", domain.ErrClosed)
	}
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()

	s.logger.Debug("subscribed", "query", q.Key())
	sub.push()
	return sub, nil
}

// notify re-runs every live subscription.
func (s *BlobStore) notify() {
	s.subsMu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.push()
	}
}

func (sub *subscription) push() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	ev := domain.Event{Kind: domain.EventResults, Results: sub.store.search(sub.query, sub.limit)}

	select {
	case sub.events <- ev:
	default:
		// Reader is behind; replace the stale result set.
		select {
		case <-sub.events:
		default:
		}
		sub.events <- ev
	}
}

func (sub *subscription) Events() <-chan domain.Event { return sub.events }

func (sub *subscription) LoadMore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return domain.ErrClosed
	}
	sub.limit += DefaultPageSize
	sub.mu.Unlock()
	sub.push()
	return nil
}

// Refresh re-runs the query. Local mutations already push, so this only
// matters for changes made by another process sharing the database.
func (sub *subscription) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sub.push()
	return nil
}

func (sub *subscription) Close() error {
	sub.store.subsMu.Lock()
	delete(sub.store.subs, sub)
	sub.store.subsMu.Unlock()
	sub.shutdown()
	return nil
}

func (sub *subscription) shutdown() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.events)
}
