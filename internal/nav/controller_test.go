package nav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/blobnav/internal/aspect"
	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/selection"
	"github.com/mmcdole/blobnav/internal/session"
	"github.com/mmcdole/blobnav/internal/storetest"
)

const (
	origin            = "http://localhost:3179"
	setRef domain.Ref = "sha224-0a1b2c"
)

type fixture struct {
	store *storetest.Fake
	queue *loop.Queue
	cache *session.Cache
	sel   *selection.Set
	ctl   *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: storetest.New(), queue: loop.NewQueue(), sel: selection.New()}
	f.store.SetResult(domain.TargetQuery(setRef), []domain.Ref{setRef}, map[domain.Ref]*domain.Descriptor{
		setRef: {
			BlobRef:   setRef,
			CamliType: domain.CamliTypePermanode,
			Permanode: &domain.PermanodeDesc{Attr: map[string][]string{domain.AttrMember: {"sha224-ff"}}},
		},
	})
	f.cache = session.NewCache(f.store, f.queue, session.DefaultSize, session.Listeners{}, nil)
	t.Cleanup(f.cache.Close)
	f.ctl = New(f.cache, nil, f.sel, nil)
	return f
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.queue.RunUntil(ctx, func() bool {
		for _, s := range f.cache.Sessions() {
			if !s.Loaded() && !s.HasTransportError() {
				return false
			}
		}
		return true
	}))
}

func titles(aspects []aspect.Aspect) []string {
	out := make([]string, 0, len(aspects))
	for _, a := range aspects {
		out = append(out, a.Title)
	}
	return out
}

func TestNavigateBeforeInit(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, StateUninitialized, f.ctl.State())
	assert.False(t, f.ctl.Navigate(origin+"/ui/"))
	assert.Zero(t, f.cache.Len())
}

func TestInitHandlesInitialLocation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))
	assert.Equal(t, StateActive, f.ctl.State())
	assert.Equal(t, origin+"/ui/", f.ctl.BaseURL().String())

	f.settle(t)
	aspects, active, ok := f.ctl.Aspects()
	require.True(t, ok)
	assert.Equal(t, 0, active)
	assert.Equal(t, []string{"Search"}, titles(aspects))
	assert.True(t, f.ctl.ChildSession().Query().IsMatchAll())
	assert.Nil(t, f.ctl.TargetSession())
}

func TestInitOutsideRoot(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.ctl.Init(origin+"/other/", "/ui/"))
}

func TestNavigateDeclinesOutOfScope(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/?q=cats", ""))
	f.sel.Add("sha224-aa")
	before := f.ctl.CurrentURL().String()
	child := f.ctl.ChildSession()

	for _, loc := range []string{
		"http://example.com/ui/",
		"https://localhost:3179/ui/",
		origin + "/status/",
		"://bad",
	} {
		assert.False(t, f.ctl.Navigate(loc), loc)
	}

	assert.Equal(t, before, f.ctl.CurrentURL().String())
	assert.Same(t, child, f.ctl.ChildSession())
	assert.True(t, f.sel.Has("sha224-aa"))
}

func TestNavigateTarget(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))
	f.sel.Add("sha224-aa")

	require.True(t, f.ctl.Navigate(f.ctl.DetailURL(setRef)))
	assert.Equal(t, setRef, f.ctl.Target())
	assert.Zero(t, f.sel.Len())
	assert.Equal(t, domain.TargetQuery(setRef).Key(), f.ctl.TargetSession().Key())
	assert.Equal(t, domain.ChildrenOf(setRef).Key(), f.ctl.ChildSession().Key())
	assert.Equal(t, "ref:"+string(setRef), f.ctl.CurrentSearch())

	f.settle(t)
	aspects, _, ok := f.ctl.Aspects()
	require.True(t, ok)
	assert.Equal(t, []string{"Contents", "Permanode", "Blob"}, titles(aspects))
}

func TestNavigateNonRefPathHasNoTarget(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))
	require.True(t, f.ctl.Navigate(origin+"/ui/sha224-0a1b2cXYZ"))
	assert.False(t, f.ctl.Target().Valid())
	assert.Nil(t, f.ctl.TargetSession())
}

func TestNavigateMalformedRawQuery(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))

	require.True(t, f.ctl.Navigate(f.ctl.SearchURL(`raw:{"permanode":{"attr":`)))
	assert.Nil(t, f.ctl.ChildSession())
	assert.Nil(t, f.ctl.TargetSession())

	aspects, active, ok := f.ctl.Aspects()
	assert.Empty(t, aspects)
	assert.Equal(t, -1, active)
	assert.False(t, ok)
}

func TestNavigateLogsMalformedQuery(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.ctl = New(f.cache, nil, f.sel, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))

	require.True(t, f.ctl.Navigate(f.ctl.SearchURL(`raw:{"file":{"fileName":{"equals":"a.txt"}}}`)))
	assert.Empty(t, logs.String())

	require.True(t, f.ctl.Navigate(f.ctl.SearchURL(`raw:{"permanode":`)))
	assert.Contains(t, logs.String(), "malformed raw query")
	assert.NotContains(t, logs.String(), "invalid JSON")
}

func TestNavigateRawQueryRoundTrip(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))

	require.True(t, f.ctl.Navigate(f.ctl.SearchURL(`raw:{"permanode":{"attr":"camliRoot"}}`)))
	want := domain.ConstraintQuery(&domain.Constraint{Permanode: &domain.PermanodeConstraint{Attr: "camliRoot"}})
	assert.Equal(t, want.Key(), f.ctl.ChildSession().Key())
}

func TestNavigateRawQueryWithUnsupportedFields(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))

	raw := `{"permanode":{"attr":"tag","valueMatches":{"contains":"x"}}}`
	require.True(t, f.ctl.Navigate(f.ctl.SearchURL("raw:"+raw)))
	child := f.ctl.ChildSession()
	require.NotNil(t, child)
	assert.True(t, child.Query().Constraint.IsRaw())
	assert.JSONEq(t, raw, string(child.Query().Constraint.Raw))

	f.settle(t)
	aspects, _, ok := f.ctl.Aspects()
	require.True(t, ok)
	assert.Equal(t, []string{"Search"}, titles(aspects))
}

func TestNavigateRawQueryRejectedByStore(t *testing.T) {
	f := newFixture(t)
	f.store.SubscribeErr = fmt.Errorf("subscribe: %w", domain.ErrUnsupportedQuery)
	require.NoError(t, f.ctl.Init(origin+"/ui/?q=raw:"+url.QueryEscape(`{"file":{"fileName":{"equals":"a.txt"}}}`), ""))
	f.settle(t)

	child := f.ctl.ChildSession()
	require.NotNil(t, child)
	assert.True(t, child.HasTransportError())
	assert.ErrorIs(t, child.Err(), domain.ErrUnsupportedQuery)

	errs := f.ctl.Errors(nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ConnectionError, errs[0].Error)
}

func TestPoolBoundedAcrossNavigations(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))

	for _, text := range []string{"a", "b", "c", "d", "e"} {
		require.True(t, f.ctl.Navigate(f.ctl.SearchURL(text)))
		assert.LessOrEqual(t, f.cache.Len(), session.DefaultSize)
	}
	f.settle(t)

	for _, sub := range f.store.Subscriptions() {
		assert.LessOrEqual(t, sub.Closes(), 1)
	}
}

func TestSmallCacheKeepsPageSessions(t *testing.T) {
	f := newFixture(t)
	f.cache = session.NewCache(f.store, f.queue, 1, session.Listeners{}, nil)
	t.Cleanup(f.cache.Close)
	f.ctl = New(f.cache, nil, f.sel, nil)

	require.NoError(t, f.ctl.Init(origin+"/ui/"+string(setRef), ""))
	f.settle(t)

	assert.False(t, f.ctl.TargetSession().Closed())
	assert.True(t, f.ctl.TargetSession().Loaded())
	aspects, _, ok := f.ctl.Aspects()
	require.True(t, ok)
	assert.Equal(t, []string{"Contents", "Permanode", "Blob"}, titles(aspects))
}

func TestHistoryReproducesAspects(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))
	n := NewNavigator(f.ctl.Navigate, origin+"/ui/")

	require.True(t, n.Go(f.ctl.DetailURL(setRef)+"#permanode"))
	f.settle(t)
	detail, detailActive, _ := f.ctl.Aspects()

	require.True(t, n.Go(f.ctl.SearchURL("cats")))
	f.settle(t)
	search, searchActive, _ := f.ctl.Aspects()

	require.True(t, n.Back())
	assert.Equal(t, aspect.TransitionBackward, n.Transition())
	f.settle(t)
	got, active, _ := f.ctl.Aspects()
	assert.Equal(t, titles(detail), titles(got))
	assert.Equal(t, detailActive, active)
	assert.Equal(t, 1, active)

	require.True(t, n.Forward())
	f.settle(t)
	got, active, _ = f.ctl.Aspects()
	assert.Equal(t, titles(search), titles(got))
	assert.Equal(t, searchActive, active)
	assert.False(t, n.CanForward())
}

func TestNavigatorSkipsDeclined(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))
	n := NewNavigator(f.ctl.Navigate, origin+"/ui/")

	assert.False(t, n.Go("http://example.com/"))
	assert.False(t, n.CanBack())
	assert.Equal(t, origin+"/ui/", n.Current())
}

func TestSearchURLs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))

	assert.Equal(t, origin+"/ui/"+string(setRef), f.ctl.SearchURL("ref:"+string(setRef)))

	u, err := url.Parse(f.ctl.SearchRootsURL())
	require.NoError(t, err)
	assert.Equal(t, `raw:{"permanode":{"attr":"camliRoot","numValue":{"min":1}}}`, u.Query().Get(SearchParam))

	require.True(t, f.ctl.Navigate(f.ctl.SearchURL("tag:funny")))
	assert.Equal(t, "tag:funny", f.ctl.CurrentSearch())
	assert.Equal(t, origin+"/ui/?q=tag%3Afunny#contents", f.ctl.FragmentURL("contents"))
}

func TestErrorsIncludeTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.store.SubscribeErr = errors.New("dial tcp: refused")
	require.NoError(t, f.ctl.Init(origin+"/ui/", ""))
	f.settle(t)

	status := &domain.ServerStatus{Errors: []domain.StatusError{{Error: "index is out of date"}}}
	errs := f.ctl.Errors(status)
	require.Len(t, errs, 2)
	assert.Equal(t, "index is out of date", errs[0].Error)
	assert.Equal(t, ConnectionError, errs[1].Error)
}
