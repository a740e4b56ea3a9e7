package aspect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/session"
	"github.com/mmcdole/blobnav/internal/storetest"
)

const (
	target  domain.Ref = "sha224-aa"
	content domain.Ref = "sha224-bb"
)

// loadedSession returns a live session whose metadata is meta.
func loadedSession(t *testing.T, q domain.Query, meta map[domain.Ref]*domain.Descriptor) *session.Session {
	t.Helper()
	store := storetest.New()
	refs := make([]domain.Ref, 0, len(meta))
	for ref := range meta {
		refs = append(refs, ref)
	}
	store.SetResult(q, refs, meta)

	queue := loop.NewQueue()
	cache := session.NewCache(store, queue, 0, session.Listeners{}, nil)
	t.Cleanup(cache.Close)

	s := cache.Acquire("", q)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, queue.RunUntil(ctx, s.Loaded))
	return s
}

func permanode(ref domain.Ref, attr map[string][]string) *domain.Descriptor {
	return &domain.Descriptor{BlobRef: ref, CamliType: domain.CamliTypePermanode, Permanode: &domain.PermanodeDesc{Attr: attr}}
}

func fragments(aspects []Aspect) []string {
	out := make([]string, 0, len(aspects))
	for _, a := range aspects {
		out = append(out, a.Fragment)
	}
	return out
}

func TestResolveNoTarget(t *testing.T) {
	child := loadedSession(t, domain.MatchAll(), nil)

	aspects := NewResolver().Resolve(Input{ChildSession: child})
	require.Len(t, aspects, 1)
	assert.Equal(t, "Search", aspects[0].Title)
	assert.Equal(t, "search", aspects[0].Fragment)

	assert.Empty(t, NewResolver().Resolve(Input{}))
}

func TestResolveSuppressesContentsForNonContainer(t *testing.T) {
	tests := []struct {
		name string
		meta map[domain.Ref]*domain.Descriptor
		want []string
	}{
		{
			name: "non container permanode",
			meta: map[domain.Ref]*domain.Descriptor{target: permanode(target, map[string][]string{domain.AttrTitle: {"x"}})},
			want: []string{"permanode", "blob"},
		},
		{
			name: "container permanode",
			meta: map[domain.Ref]*domain.Descriptor{target: permanode(target, map[string][]string{domain.AttrMember: {"sha224-cc"}})},
			want: []string{"contents", "permanode", "blob"},
		},
		{
			name: "plain file",
			meta: map[domain.Ref]*domain.Descriptor{target: {BlobRef: target, CamliType: domain.CamliTypeFile, File: &domain.FileDesc{FileName: "a.txt"}}},
			want: []string{"blob"},
		},
		{
			name: "unknown target",
			want: []string{"blob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := loadedSession(t, domain.TargetQuery(target), tt.meta)
			child := loadedSession(t, domain.ChildrenOf(target), nil)

			aspects := NewResolver().Resolve(Input{Target: target, TargetSession: ts, ChildSession: child})
			assert.Equal(t, tt.want, fragments(aspects))
		})
	}
}

func TestResolveWithoutChildSession(t *testing.T) {
	ts := loadedSession(t, domain.TargetQuery(target), map[domain.Ref]*domain.Descriptor{
		target: permanode(target, map[string][]string{domain.AttrMember: {"sha224-cc"}}),
	})
	assert.Equal(t, []string{"permanode", "blob"}, fragments(NewResolver().Resolve(Input{Target: target, TargetSession: ts})))
}

func TestResolveImagePermanode(t *testing.T) {
	ts := loadedSession(t, domain.TargetQuery(target), map[domain.Ref]*domain.Descriptor{
		target: permanode(target, map[string][]string{domain.AttrContent: {string(content)}}),
		content: {
			BlobRef:   content,
			CamliType: domain.CamliTypeFile,
			File:      &domain.FileDesc{FileName: "cat.png", MIMEType: "image/png"},
			Image:     &domain.ImageDesc{Width: 640, Height: 480},
		},
	})

	aspects := NewResolver().Resolve(Input{Target: target, TargetSession: ts})
	require.Equal(t, []string{"image", "permanode", "blob"}, fragments(aspects))

	view := aspects[0].Content(Size{Width: 80, Height: 10}, TransitionNone).View()
	assert.Contains(t, view, "640x480")
	assert.Contains(t, view, "cat.png")
}

func TestResolveDirectoryPermanode(t *testing.T) {
	ts := loadedSession(t, domain.TargetQuery(target), map[domain.Ref]*domain.Descriptor{
		target:  permanode(target, map[string][]string{domain.AttrContent: {string(content)}}),
		content: {BlobRef: content, CamliType: domain.CamliTypeDirectory, Dir: &domain.DirDesc{FileName: "photos"}},
	})
	assert.Equal(t, []string{"permanode", "directory", "blob"}, fragments(NewResolver().Resolve(Input{Target: target, TargetSession: ts})))
}

func TestSelect(t *testing.T) {
	aspects := []Aspect{{Fragment: "contents"}, {Fragment: "permanode"}, {Fragment: "blob"}}

	idx, ok := Select(aspects, "blob")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	idx, ok = Select(aspects, "image")
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = Select(aspects, "")
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	_, ok = Select(nil, "blob")
	assert.False(t, ok)
}

func TestClamp(t *testing.T) {
	aspects := []Aspect{{Fragment: "a"}, {Fragment: "b"}}

	idx, _ := Clamp(aspects, 1)
	assert.Equal(t, 1, idx)
	idx, _ = Clamp(aspects, 5)
	assert.Equal(t, 0, idx)
	idx, _ = Clamp(aspects, -1)
	assert.Equal(t, 0, idx)
	_, ok := Clamp(nil, 0)
	assert.False(t, ok)
}

func TestResolverCustomOrder(t *testing.T) {
	always := func(title string) Source {
		return SourceFunc(func(Input) (Aspect, bool) { return Aspect{Title: title, Fragment: title}, true })
	}
	never := SourceFunc(func(Input) (Aspect, bool) { return Aspect{}, false })

	r := NewResolver(always("b"), never, always("a"))
	assert.Equal(t, []string{"b", "a"}, fragments(r.Resolve(Input{})))
}

func TestResultsItems(t *testing.T) {
	q := domain.TextQuery("cats")
	s := loadedSession(t, q, map[domain.Ref]*domain.Descriptor{
		target:  permanode(target, map[string][]string{domain.AttrContent: {string(content)}}),
		content: {BlobRef: content, CamliType: domain.CamliTypeFile, File: &domain.FileDesc{FileName: "cat.png", MIMEType: "image/png"}},
	})

	r := &Results{Session: s}
	byRef := make(map[domain.Ref]Item)
	for _, it := range r.Items() {
		byRef[it.Ref] = it
	}
	assert.Equal(t, "cat.png", byRef[target].Title)
	assert.Equal(t, "image/png", byRef[target].Type)
	assert.Contains(t, r.View(), "cat.png")
}
