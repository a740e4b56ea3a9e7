// Package session maintains live search subscriptions and the small
// most-recently-used pool that deduplicates them across views.
package session

import (
	"context"
	"log/slog"

	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
)

// Listeners receive a session's push notifications on the event loop.
type Listeners struct {
	OnChange func(s *Session)                         // results or metadata changed
	OnStatus func(s *Session, st domain.ServerStatus) // server status changed
	OnError  func(s *Session, err error)              // transport failure
}

// Session is the live, incrementally updated result set of one query plus
// the metadata observed for any blob it has seen. All methods must be
// called on the event loop.
type Session struct {
	id     int
	query  domain.Query
	key    string
	store  domain.Store
	poster loop.Poster
	logger *slog.Logger
	hooks  Listeners

	ctx    context.Context
	cancel context.CancelFunc
	sub    domain.Subscription

	results  []domain.Ref
	meta     map[domain.Ref]*domain.Descriptor
	pending  map[domain.Ref]bool
	status   *domain.ServerStatus
	err      error
	cont     string
	complete bool
	loaded   bool
	closed   bool
}

func newSession(id int, q domain.Query, store domain.Store, poster loop.Poster, hooks Listeners, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:      id,
		query:   q,
		key:     q.Key(),
		store:   store,
		poster:  poster,
		logger:  logger,
		hooks:   hooks,
		ctx:     ctx,
		cancel:  cancel,
		meta:    make(map[domain.Ref]*domain.Descriptor),
		pending: make(map[domain.Ref]bool),
	}
}

// ID identifies the session for logging; it is unique within a cache.
func (s *Session) ID() int { return s.id }

// Query returns the session's query.
func (s *Session) Query() domain.Query { return s.query }

// Key returns the canonical serialization of the session's query.
func (s *Session) Key() string { return s.key }

// Results returns the refs of the current result set in server order.
func (s *Session) Results() []domain.Ref { return s.results }

// Loaded reports whether the first result page has arrived.
func (s *Session) Loaded() bool { return s.loaded }

// Complete reports whether every page has been loaded.
func (s *Session) Complete() bool { return s.complete }

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool { return s.closed }

// HasTransportError reports whether the subscription failed.
func (s *Session) HasTransportError() bool { return s.err != nil }

// Err returns the last transport error.
func (s *Session) Err() error { return s.err }

// Status returns the last server status pushed to this session.
func (s *Session) Status() (domain.ServerStatus, bool) {
	if s.status == nil {
		return domain.ServerStatus{}, false
	}
	return *s.status, true
}

// Meta returns already observed metadata without fetching anything.
func (s *Session) Meta(ref domain.Ref) (*domain.Descriptor, bool) {
	d, ok := s.meta[ref]
	return d, ok
}

// Lookup returns observed metadata, or starts fetching it and reports it as
// pending. OnChange fires once the descriptor arrives.
func (s *Session) Lookup(ref domain.Ref) (*domain.Descriptor, bool) {
	if d, ok := s.meta[ref]; ok {
		return d, true
	}
	if s.closed || s.pending[ref] || !ref.Valid() {
		return nil, false
	}
	s.pending[ref] = true

	ctx := s.ctx
	go func() {
		d, err := s.store.Describe(ctx, ref)
		s.poster.Post(func() { s.described(ref, d, err) })
	}()
	return nil, false
}

func (s *Session) described(ref domain.Ref, d *domain.Descriptor, err error) {
	delete(s.pending, ref)
	if s.closed {
		return
	}
	if err != nil {
		s.logger.Debug("describe failed", "session", s.id, "ref", ref, "error", err)
		return
	}
	s.meta[ref] = d
	s.fire(s.hooks.OnChange)
}

// start begins the subscription; the first result page follows asynchronously.
func (s *Session) start() {
	ctx := s.ctx
	go func() {
		sub, err := s.store.Subscribe(ctx, s.query)
		s.poster.Post(func() { s.attached(sub, err) })
	}()
}

func (s *Session) attached(sub domain.Subscription, err error) {
	if s.closed {
		// Superseded before the subscription came up.
		if sub != nil {
			sub.Close()
		}
		return
	}
	if err != nil {
		s.logger.Warn("subscription failed", "session", s.id, "query", s.key, "error", err)
		s.err = err
		if s.hooks.OnError != nil {
			s.hooks.OnError(s, err)
		}
		return
	}
	s.sub = sub
	go s.pump(sub)
}

// pump forwards subscription events to the loop until the handle closes.
func (s *Session) pump(sub domain.Subscription) {
	for ev := range sub.Events() {
		ev := ev
		s.poster.Post(func() { s.apply(ev) })
	}
}

func (s *Session) apply(ev domain.Event) {
	if s.closed {
		return
	}
	switch ev.Kind {
	case domain.EventResults:
		if ev.Results == nil {
			return
		}
		s.results = ev.Results.Blobs
		for ref, d := range ev.Results.Description {
			s.meta[ref] = d
		}
		s.cont = ev.Results.Continue
		s.complete = ev.Results.Continue == ""
		s.loaded = true
		s.err = nil
		s.fire(s.hooks.OnChange)

	case domain.EventStatus:
		if ev.Status == nil {
			return
		}
		st := *ev.Status
		s.status = &st
		if s.hooks.OnStatus != nil {
			s.hooks.OnStatus(s, st)
		}

	case domain.EventError:
		s.err = ev.Err
		s.logger.Warn("subscription error", "session", s.id, "error", ev.Err)
		if s.hooks.OnError != nil {
			s.hooks.OnError(s, ev.Err)
		}
	}
}

func (s *Session) fire(fn func(*Session)) {
	if fn != nil {
		fn(s)
	}
}

// LoadMore asks for the next result page if there is one.
func (s *Session) LoadMore() {
	if s.closed || s.sub == nil || s.complete {
		return
	}
	sub, ctx := s.sub, s.ctx
	go func() {
		if err := sub.LoadMore(ctx); err != nil {
			s.poster.Post(func() { s.apply(domain.Event{Kind: domain.EventError, Err: err}) })
		}
	}()
}

// RefreshIfNecessary re-runs the query after local mutations.
func (s *Session) RefreshIfNecessary() {
	if s.closed || s.sub == nil {
		return
	}
	sub, ctx := s.sub, s.ctx
	go func() {
		if err := sub.Refresh(ctx); err != nil {
			s.poster.Post(func() { s.apply(domain.Event{Kind: domain.EventError, Err: err}) })
		}
	}()
}

// Close releases the subscription. It is terminal and idempotent; events that
// arrive afterwards are dropped.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	if s.sub != nil {
		if err := s.sub.Close(); err != nil {
			s.logger.Debug("closing subscription", "session", s.id, "error", err)
		}
		s.sub = nil
	}
	s.logger.Debug("closed search session", "session", s.id, "query", s.key)
}
