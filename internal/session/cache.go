package session

import (
	"log/slog"

	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
)

// DefaultSize is the number of sessions kept alive after pruning.
const DefaultSize = 3

// MinSize keeps both the target and the child session of a page alive
// across Prune.
const MinSize = 2

// Cache is a bounded pool of live sessions ordered most-recently-used first.
// No two entries share a query. Entries leave the pool only through Prune or
// Close. All methods must be called on the event loop.
type Cache struct {
	store   domain.Store
	poster  loop.Poster
	logger  *slog.Logger
	hooks   Listeners
	size    int
	entries []*Session
	nextID  int
}

// NewCache creates a cache that keeps size sessions after each Prune. Sizes
// below MinSize are raised to it.
func NewCache(store domain.Store, poster loop.Poster, size int, hooks Listeners, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case size <= 0:
		size = DefaultSize
	case size < MinSize:
		logger.Warn("session cache size too small, raising", "size", size, "min", MinSize)
		size = MinSize
	}
	return &Cache{
		store:  store,
		poster: poster,
		logger: logger,
		hooks:  hooks,
		size:   size,
	}
}

// Size returns the pool bound.
func (c *Cache) Size() int { return c.size }

// Sessions returns the live entries, most recently used first.
func (c *Cache) Sessions() []*Session {
	return append([]*Session(nil), c.entries...)
}

// Len returns the number of live entries.
func (c *Cache) Len() int { return len(c.entries) }

// Acquire returns a live session for q, reusing an existing one when possible:
// first any session that has already observed metadata for target (when
// target is set), then any session whose query serializes identically. A hit
// is moved to the front without touching its subscription; a miss creates,
// starts and prepends a new session.
//
// Reuse by containment is only sound when every query passed to Acquire uses
// the same describe rules (domain.DefaultDescribe), because the reused
// session's metadata must be what a fresh session for q would have observed.
func (c *Cache) Acquire(target domain.Ref, q domain.Query) *Session {
	key := q.Key()

	idx := -1
	for i, s := range c.entries {
		if target.Valid() {
			if _, ok := s.Meta(target); ok {
				c.logger.Debug("reusing search session by target", "ref", target, "position", i)
				idx = i
				break
			}
		}
		if s.Key() == key {
			c.logger.Debug("reusing search session by query", "query", key, "position", i)
			idx = i
			break
		}
	}

	if idx >= 0 {
		s := c.entries[idx]
		copy(c.entries[1:idx+1], c.entries[:idx])
		c.entries[0] = s
		return s
	}

	c.nextID++
	c.logger.Debug("creating search session", "session", c.nextID, "query", key)
	s := newSession(c.nextID, q, c.store, c.poster, c.hooks, c.logger)
	s.start()
	c.entries = append([]*Session{s}, c.entries...)
	return s
}

// Prune closes and drops every entry beyond the pool bound. Call it once per
// navigation, after both the target and child sessions have been acquired.
func (c *Cache) Prune() {
	if len(c.entries) <= c.size {
		return
	}
	for _, s := range c.entries[c.size:] {
		s.Close()
	}
	for i := c.size; i < len(c.entries); i++ {
		c.entries[i] = nil
	}
	c.entries = c.entries[:c.size]
}

// RefreshAll asks every live session to refresh.
func (c *Cache) RefreshAll() {
	for _, s := range c.entries {
		s.RefreshIfNecessary()
	}
}

// Close closes every entry and empties the pool.
func (c *Cache) Close() {
	for _, s := range c.entries {
		s.Close()
	}
	c.entries = nil
}
