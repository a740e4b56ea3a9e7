// Package browser composes navigation, sessions, aspects and batch
// mutations into the page state a shell renders.
package browser

import (
	"fmt"
	"log/slog"

	"github.com/mmcdole/blobnav/internal/aspect"
	"github.com/mmcdole/blobnav/internal/batch"
	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/nav"
	"github.com/mmcdole/blobnav/internal/selection"
	"github.com/mmcdole/blobnav/internal/session"
)

// Config holds the page settings.
type Config struct {
	Location          string // initial location
	UIRoot            string // defaults to nav.DefaultUIRoot
	CacheSize         int    // defaults to session.DefaultSize
	UploadConcurrency int
	Sources           []aspect.Source // defaults to aspect.DefaultSources
}

// Browser is the page. Every method must be called on the event loop that
// poster feeds.
type Browser struct {
	store  domain.Store
	poster loop.Poster
	logger *slog.Logger

	cache     *session.Cache
	ctl       *nav.Controller
	history   *nav.Navigator
	selection *selection.Set
	orch      *batch.Orchestrator

	status      *domain.ServerStatus
	currentSet  domain.Ref
	notice      string
	diagnostics Diagnostics
	onChange    func()
}

// New creates the page and navigates to cfg.Location.
func New(store domain.Store, poster loop.Poster, cfg Config, logger *slog.Logger) (*Browser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Browser{
		store:     store,
		poster:    poster,
		logger:    logger,
		selection: selection.New(),
	}

	b.cache = session.NewCache(store, poster, cfg.CacheSize, session.Listeners{
		OnChange: func(*session.Session) { b.changed() },
		OnStatus: func(_ *session.Session, st domain.ServerStatus) {
			b.status = &st
			b.changed()
		},
		OnError: func(*session.Session, error) { b.changed() },
	}, logger)

	b.ctl = nav.New(b.cache, aspect.NewResolver(cfg.Sources...), b.selection, logger)
	b.orch = batch.New(store, poster, b.selection, b.ctl, logger)
	b.orch.SetObserver(b)
	b.orch.SetConcurrency(cfg.UploadConcurrency)

	if err := b.ctl.Init(cfg.Location, cfg.UIRoot); err != nil {
		b.cache.Close()
		return nil, fmt.Errorf("init browser: %w", err)
	}
	b.history = nav.NewNavigator(b.ctl.Navigate, cfg.Location)
	return b, nil
}

// SetOnChange registers the shell's redraw hook.
func (b *Browser) SetOnChange(fn func()) { b.onChange = fn }

// SetDiagnostics installs the debug console opened by '|'.
func (b *Browser) SetDiagnostics(d Diagnostics) { b.diagnostics = d }

func (b *Browser) changed() {
	if b.onChange != nil {
		b.onChange()
	}
}

// OnUploadProgress implements domain.ProgressObserver.
func (b *Browser) OnUploadProgress(domain.UploadProgress) { b.changed() }

// Close tears down every live session. The store is left open.
func (b *Browser) Close() {
	b.cache.Close()
}

// === Navigation ===

// Navigate goes to location and records it in the history. It returns false
// when location is outside the browser.
func (b *Browser) Navigate(location string) bool {
	ok := b.history.Go(location)
	if ok {
		b.notice = ""
		b.changed()
	}
	return ok
}

// Back returns to the previous location.
func (b *Browser) Back() bool {
	ok := b.history.Back()
	if ok {
		b.changed()
	}
	return ok
}

// Forward re-enters the next location.
func (b *Browser) Forward() bool {
	ok := b.history.Forward()
	if ok {
		b.changed()
	}
	return ok
}

// Open navigates to ref's detail page.
func (b *Browser) Open(ref domain.Ref) bool {
	return b.Navigate(b.ctl.DetailURL(ref))
}

// Home navigates to the unfiltered listing.
func (b *Browser) Home() bool {
	return b.Navigate(b.ctl.BaseURL().String())
}

// SearchRoots navigates to the listing of root permanodes.
func (b *Browser) SearchRoots() bool {
	return b.Navigate(b.ctl.SearchRootsURL())
}

// SubmitSearch navigates to the search for text; "ref:<blobref>" opens that
// blob directly.
func (b *Browser) SubmitSearch(text string) bool {
	return b.Navigate(b.ctl.SearchURL(text))
}

// SelectAspect activates the aspect at index i of the current list.
func (b *Browser) SelectAspect(i int) bool {
	aspects, _, _ := b.ctl.Aspects()
	idx, ok := aspect.Clamp(aspects, i)
	if !ok {
		return false
	}
	return b.Navigate(b.ctl.FragmentURL(aspects[idx].Fragment))
}

// LoadMore asks the listing for its next page.
func (b *Browser) LoadMore() {
	if s := b.ctl.ChildSession(); s != nil {
		s.LoadMore()
	}
}

// Reconnect drops every session and re-enters the current location, which
// resubscribes from scratch.
func (b *Browser) Reconnect() {
	b.cache.Close()
	if u := b.ctl.CurrentURL(); u != nil {
		b.ctl.Navigate(u.String())
	}
	b.changed()
}

// RefreshSessions implements batch.Refresher.
func (b *Browser) RefreshSessions() {
	b.ctl.RefreshSessions()
}

// Loading reports whether any live session is still waiting for its first
// result page.
func (b *Browser) Loading() bool {
	for _, s := range b.cache.Sessions() {
		if !s.Loaded() && !s.HasTransportError() {
			return true
		}
	}
	return false
}

// Content builds the active aspect's content for size, or nil when there is
// nothing to show.
func (b *Browser) Content(size aspect.Size) aspect.Content {
	aspects, active, ok := b.ctl.Aspects()
	if !ok || aspects[active].Content == nil {
		return nil
	}
	return aspects[active].Content(size, b.history.Transition())
}

// Listing returns the child session's results, or nil when there is no child
// session.
func (b *Browser) Listing() []aspect.Item {
	s := b.ctl.ChildSession()
	if s == nil {
		return nil
	}
	return (&aspect.Results{Session: s}).Items()
}
