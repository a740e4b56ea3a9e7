// Package nav maps browser locations onto search sessions and aspects.
package nav

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mmcdole/blobnav/internal/aspect"
	"github.com/mmcdole/blobnav/internal/blobref"
	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/selection"
	"github.com/mmcdole/blobnav/internal/session"
)

// DefaultUIRoot is the path the browser is mounted under.
const DefaultUIRoot = "/ui/"

// SearchParam is the URL parameter holding the search-box text.
const SearchParam = "q"

// State is the controller lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "uninitialized"
}

// Controller owns the current location and the two sessions derived from it:
// the target session (the blob named by the path) and the child session (its
// members, or the search named by the query string).
type Controller struct {
	cache     *session.Cache
	resolver  *aspect.Resolver
	selection *selection.Set
	logger    *slog.Logger

	state   State
	base    *url.URL
	current *url.URL

	target        domain.Ref
	targetSession *session.Session
	childSession  *session.Session
}

// New creates an uninitialized controller.
func New(cache *session.Cache, resolver *aspect.Resolver, sel *selection.Set, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = aspect.NewResolver()
	}
	if sel == nil {
		sel = selection.New()
	}
	return &Controller{
		cache:     cache,
		resolver:  resolver,
		selection: sel,
		logger:    logger,
	}
}

// Init captures the base URL (uiRoot resolved against location) and handles
// location as the first navigation.
func (c *Controller) Init(location, uiRoot string) error {
	u, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("parse location: %w", err)
	}
	if uiRoot == "" {
		uiRoot = DefaultUIRoot
	}
	root, err := url.Parse(uiRoot)
	if err != nil {
		return fmt.Errorf("parse ui root: %w", err)
	}
	base := u.ResolveReference(root)
	base.RawQuery = ""
	base.Fragment = ""
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c.base = base
	c.state = StateActive
	if !c.Navigate(location) {
		return fmt.Errorf("location %s is outside %s", location, base)
	}
	return nil
}

// State returns the lifecycle state.
func (c *Controller) State() State { return c.state }

// Navigate handles a location change. It returns false, leaving all state
// untouched, when location is not under the base URL so the caller can
// handle it some other way.
func (c *Controller) Navigate(location string) bool {
	if c.state != StateActive {
		return false
	}
	u, err := url.Parse(location)
	if err != nil || !c.inScope(u) {
		c.logger.Debug("declining navigation", "url", location)
		return false
	}

	target := c.targetOf(u)
	c.target = target
	c.updateTargetSession(target)
	c.updateChildSession(target, u)
	c.cache.Prune()

	c.current = u
	c.selection.Clear()
	c.logger.Debug("navigated", "url", location, "target", target)
	return true
}

func (c *Controller) inScope(u *url.URL) bool {
	if u.Scheme != c.base.Scheme || u.Host != c.base.Host {
		return false
	}
	return strings.HasPrefix(u.Path, c.base.Path) || u.Path+"/" == c.base.Path
}

func (c *Controller) targetOf(u *url.URL) domain.Ref {
	suffix := strings.TrimPrefix(u.Path, c.base.Path)
	ref, _ := blobref.Match(suffix)
	return ref
}

func (c *Controller) updateTargetSession(target domain.Ref) {
	if !target.Valid() {
		c.targetSession = nil
		return
	}
	c.targetSession = c.cache.Acquire(target, domain.TargetQuery(target))
}

func (c *Controller) updateChildSession(target domain.Ref, u *url.URL) {
	q, ok := c.childQuery(target, u)
	if !ok {
		c.childSession = nil
		return
	}
	c.childSession = c.cache.Acquire("", q)
}

func (c *Controller) childQuery(target domain.Ref, u *url.URL) (domain.Query, bool) {
	if target.Valid() {
		return domain.ChildrenOf(target), true
	}
	text := u.Query().Get(SearchParam)
	if text == "" {
		return domain.MatchAll(), true
	}
	q, err := domain.ParseSearch(text)
	if err != nil {
		c.logger.Error("ignoring search", "query", text, "error", err)
		return domain.Query{}, false
	}
	return q, true
}

// CurrentURL returns a copy of the current location, or nil before Init.
func (c *Controller) CurrentURL() *url.URL {
	if c.current == nil {
		return nil
	}
	u := *c.current
	return &u
}

// BaseURL returns a copy of the base URL, or nil before Init.
func (c *Controller) BaseURL() *url.URL {
	if c.base == nil {
		return nil
	}
	u := *c.base
	return &u
}

// Target returns the ref named by the current path, if any.
func (c *Controller) Target() domain.Ref { return c.target }

// TargetSession returns the session describing the target, or nil.
func (c *Controller) TargetSession() *session.Session { return c.targetSession }

// ChildSession returns the session listing children or search results, or nil.
func (c *Controller) ChildSession() *session.Session { return c.childSession }

// Fragment returns the current URL fragment.
func (c *Controller) Fragment() string {
	if c.current == nil {
		return ""
	}
	return c.current.Fragment
}

// Input returns the resolver input for the current location.
func (c *Controller) Input() aspect.Input {
	return aspect.Input{
		Target:        c.target,
		TargetSession: c.targetSession,
		ChildSession:  c.childSession,
	}
}

// Aspects resolves the aspects for the current location and the index of
// the active one. ok is false when there are no aspects.
func (c *Controller) Aspects() (aspects []aspect.Aspect, active int, ok bool) {
	if c.state != StateActive {
		return nil, -1, false
	}
	aspects = c.resolver.Resolve(c.Input())
	active, ok = aspect.Select(aspects, c.Fragment())
	return aspects, active, ok
}

// RefreshSessions asks the target and child sessions to refresh.
func (c *Controller) RefreshSessions() {
	if c.targetSession != nil {
		c.targetSession.RefreshIfNecessary()
	}
	if c.childSession != nil {
		c.childSession.RefreshIfNecessary()
	}
}
