package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/storetest"
)

func newTestCache(t *testing.T, store *storetest.Fake, hooks Listeners) (*Cache, *loop.Queue) {
	t.Helper()
	q := loop.NewQueue()
	c := NewCache(store, q, DefaultSize, hooks, nil)
	t.Cleanup(c.Close)
	return c, q
}

func runUntil(t *testing.T, q *loop.Queue, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.RunUntil(ctx, cond))
}

func TestAcquireSameQueryReusesSession(t *testing.T) {
	store := storetest.New()
	c, q := newTestCache(t, store, Listeners{})

	a := c.Acquire("", domain.TextQuery("tag:funny"))
	b := c.Acquire("", domain.TextQuery("foo"))
	require.NotSame(t, a, b)

	again := c.Acquire("", domain.TextQuery("tag:funny"))
	assert.Same(t, a, again)
	assert.Equal(t, []*Session{a, b}, c.Sessions())

	runUntil(t, q, func() bool { return a.Loaded() && b.Loaded() })
	assert.Len(t, store.Subscriptions(), 2)
}

func TestAcquireEqualJSONReusesSession(t *testing.T) {
	store := storetest.New()
	c, _ := newTestCache(t, store, Listeners{})

	parsed, err := domain.ParseSearch(`raw:{"permanode":{"attr":"camliRoot","numValue":{"min":1}}}`)
	require.NoError(t, err)

	one := int64(1)
	built := domain.ConstraintQuery(&domain.Constraint{
		Permanode: &domain.PermanodeConstraint{Attr: domain.AttrRoot, NumValue: &domain.NumValueConstraint{Min: &one}},
	})

	assert.Same(t, c.Acquire("", parsed), c.Acquire("", built))
	assert.Equal(t, 1, c.Len())
}

func TestAcquireByTargetMetadata(t *testing.T) {
	store := storetest.New()
	target := domain.Ref("sha224-aa")
	store.SetResult(domain.MatchAll(), []domain.Ref{target}, map[domain.Ref]*domain.Descriptor{
		target: {BlobRef: target, CamliType: domain.CamliTypePermanode, Permanode: &domain.PermanodeDesc{}},
	})
	c, q := newTestCache(t, store, Listeners{})

	all := c.Acquire("", domain.MatchAll())
	other := c.Acquire("", domain.TextQuery("foo"))
	runUntil(t, q, func() bool { return all.Loaded() && other.Loaded() })

	got := c.Acquire(target, domain.TargetQuery(target))
	assert.Same(t, all, got)
	assert.Equal(t, []*Session{all, other}, c.Sessions())
	assert.Len(t, store.Subscriptions(), 2)
}

func TestPruneBoundsPool(t *testing.T) {
	store := storetest.New()
	c, q := newTestCache(t, store, Listeners{})

	var sessions []*Session
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		sessions = append(sessions, c.Acquire("", domain.TextQuery(text)))
	}
	runUntil(t, q, func() bool {
		for _, s := range sessions {
			if !s.Loaded() {
				return false
			}
		}
		return true
	})

	c.Prune()
	require.Equal(t, DefaultSize, c.Len())
	assert.Equal(t, []*Session{sessions[4], sessions[3], sessions[2]}, c.Sessions())

	subs := store.Subscriptions()
	require.Len(t, subs, 5)
	for i, sub := range subs {
		if i < 2 {
			assert.True(t, sessions[i].Closed())
			assert.Equal(t, 1, sub.Closes(), "evicted session %d", i)
		} else {
			assert.False(t, sessions[i].Closed())
			assert.Zero(t, sub.Closes(), "live session %d", i)
		}
	}

	c.Prune()
	sessions[0].Close()
	assert.Equal(t, 1, subs[0].Closes())
}

func TestCacheSizeHasFloor(t *testing.T) {
	store := storetest.New()
	q := loop.NewQueue()

	assert.Equal(t, DefaultSize, NewCache(store, q, 0, Listeners{}, nil).Size())
	assert.Equal(t, MinSize, NewCache(store, q, 1, Listeners{}, nil).Size())
	assert.Equal(t, 5, NewCache(store, q, 5, Listeners{}, nil).Size())

	c := NewCache(store, q, 1, Listeners{}, nil)
	t.Cleanup(c.Close)
	target := c.Acquire("sha224-aa", domain.TargetQuery("sha224-aa"))
	child := c.Acquire("", domain.ChildrenOf("sha224-aa"))
	c.Prune()
	assert.False(t, target.Closed())
	assert.False(t, child.Closed())
}

func TestLateEventsDroppedAfterClose(t *testing.T) {
	store := storetest.New()
	changes := 0
	c, q := newTestCache(t, store, Listeners{OnChange: func(*Session) { changes++ }})

	s := c.Acquire("", domain.TextQuery("foo"))
	runUntil(t, q, s.Loaded)
	require.Equal(t, 1, changes)

	s.Close()
	s.apply(domain.Event{Kind: domain.EventResults, Results: &domain.SearchResult{Blobs: []domain.Ref{"sha224-bb"}}})
	assert.Equal(t, 1, changes)
	assert.Empty(t, s.Results())
}

func TestCloseBeforeSubscribeAttaches(t *testing.T) {
	store := storetest.New()
	c, q := newTestCache(t, store, Listeners{})

	s := c.Acquire("", domain.TextQuery("foo"))
	s.Close()

	assert.Eventually(t, func() bool {
		q.RunPending()
		subs := store.Subscriptions()
		return len(subs) == 1 && subs[0].Closes() == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, s.Loaded())
}

func TestTransportErrorKeepsSessionPooled(t *testing.T) {
	store := storetest.New()
	store.SubscribeErr = errors.New("connection refused")

	var failed *Session
	c, q := newTestCache(t, store, Listeners{OnError: func(s *Session, err error) { failed = s }})

	s := c.Acquire("", domain.TextQuery("foo"))
	runUntil(t, q, s.HasTransportError)

	assert.Same(t, s, failed)
	assert.Equal(t, 1, c.Len())
	assert.Same(t, s, c.Acquire("", domain.TextQuery("foo")))
}

func TestLookupFetchesOnce(t *testing.T) {
	store := storetest.New()
	ref := domain.Ref("sha224-cc")
	store.Meta[ref] = &domain.Descriptor{BlobRef: ref, CamliType: domain.CamliTypeFile}
	c, q := newTestCache(t, store, Listeners{})

	s := c.Acquire("", domain.MatchAll())
	_, ok := s.Lookup(ref)
	assert.False(t, ok)
	_, ok = s.Lookup(ref)
	assert.False(t, ok)

	runUntil(t, q, func() bool { _, ok := s.Meta(ref); return ok })
	d, ok := s.Lookup(ref)
	require.True(t, ok)
	assert.Equal(t, domain.CamliTypeFile, d.CamliType)
	assert.Equal(t, 1, store.Describes())
}

func TestRefreshAllAndLoadMore(t *testing.T) {
	store := storetest.New()
	q := domain.TextQuery("foo")
	store.Results[q.Key()] = &domain.SearchResult{Blobs: []domain.Ref{"sha224-aa"}, Continue: "page2"}
	c, loopQ := newTestCache(t, store, Listeners{})

	s := c.Acquire("", q)
	runUntil(t, loopQ, s.Loaded)
	assert.False(t, s.Complete())

	sub := store.Subscriptions()[0]
	s.LoadMore()
	c.RefreshAll()
	assert.Eventually(t, func() bool { return sub.Loads() == 1 && sub.Refreshes() == 1 }, time.Second, 5*time.Millisecond)
}
