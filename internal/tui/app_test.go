package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/blobnav/internal/browser"
	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/storetest"
)

const (
	home                = "http://localhost:3179/ui/"
	setRef   domain.Ref = "sha224-5e7"
	photoRef domain.Ref = "sha224-a1"
)

type fakeOpener struct{ urls []string }

func (o *fakeOpener) Open(url string) error {
	o.urls = append(o.urls, url)
	return nil
}

type harness struct {
	t     *testing.T
	m     Model
	b     *browser.Browser
	store *storetest.Fake
	q     *loop.Queue
}

func newHarness(t *testing.T, opener Opener) *harness {
	t.Helper()
	store := storetest.New()
	store.SetResult(domain.MatchAll(), []domain.Ref{setRef, photoRef}, map[domain.Ref]*domain.Descriptor{
		setRef: {
			BlobRef:   setRef,
			CamliType: domain.CamliTypePermanode,
			Permanode: &domain.PermanodeDesc{Attr: map[string][]string{
				domain.AttrTitle:  {"Trip"},
				domain.AttrMember: {string(photoRef)},
				domain.AttrTag:    {"travel"},
			}},
		},
		photoRef: {BlobRef: photoRef, CamliType: domain.CamliTypeFile, File: &domain.FileDesc{FileName: "beach.jpg"}},
	})

	q := loop.NewQueue()
	b, err := browser.New(store, q, browser.Config{Location: home}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	h := &harness{t: t, b: b, store: store, q: q}
	h.m = NewModel(b, q, opener, nil)
	t.Cleanup(h.m.cancel)
	h.send(tea.WindowSizeMsg{Width: 100, Height: 30})
	h.waitFor(func() bool { return len(b.Listing()) == 2 })
	return h
}

// send delivers msg to the model, discarding commands
func (h *harness) send(msg tea.Msg) {
	out, _ := h.m.Update(msg)
	h.m = out.(Model)
}

// cmd delivers msg and returns the resulting command
func (h *harness) cmd(msg tea.Msg) tea.Cmd {
	out, cmd := h.m.Update(msg)
	h.m = out.(Model)
	return cmd
}

func (h *harness) keys(s string) {
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) press(t tea.KeyType) {
	h.send(tea.KeyMsg{Type: t})
}

// waitFor drains the event queue until cond holds, then resyncs the model
func (h *harness) waitFor(cond func() bool) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.q.RunUntil(ctx, cond))
	h.send(ClearStatusMsg{})
}

func TestModelListsResults(t *testing.T) {
	h := newHarness(t, nil)

	assert.True(t, h.m.isList)
	assert.Equal(t, 2, h.m.list.ItemCount())

	view := h.m.View()
	assert.Contains(t, view, "Trip")
	assert.Contains(t, view, "beach.jpg")
	assert.Contains(t, view, home)
}

func TestModelSelectAndTag(t *testing.T) {
	h := newHarness(t, nil)

	h.keys("j")
	h.press(tea.KeySpace)
	assert.True(t, h.b.Selected(photoRef))
	assert.Contains(t, h.m.View(), "1 selected")

	h.keys("t")
	require.True(t, h.m.input.IsVisible())
	assert.Equal(t, modalTag, h.m.modal)

	h.keys("cats")
	h.press(tea.KeyEnter)
	assert.False(t, h.m.input.IsVisible())

	h.waitFor(func() bool { return h.b.Snapshot().Notice == "tagged" })
	adds := h.store.CallsOf("add")
	require.Len(t, adds, 1)
	assert.Equal(t, photoRef, adds[0].Permanode)
	assert.Equal(t, "cats", adds[0].Value)
}

func TestModelTagRequiresSelection(t *testing.T) {
	h := newHarness(t, nil)

	h.keys("t")
	assert.False(t, h.m.input.IsVisible())
	assert.Equal(t, "Nothing selected", h.m.StatusMsg)
	assert.True(t, h.m.StatusIsErr)
}

func TestModelDeleteConfirmation(t *testing.T) {
	h := newHarness(t, nil)

	h.press(tea.KeySpace)
	h.keys("x")
	require.Equal(t, StateConfirmDelete, h.m.State)
	assert.Contains(t, h.m.View(), "Delete item?")

	h.keys("n")
	assert.Equal(t, StateBrowsing, h.m.State)
	assert.Empty(t, h.store.CallsOf("delete"))

	h.keys("x")
	h.keys("y")
	assert.Equal(t, StateBrowsing, h.m.State)
	h.waitFor(func() bool { return h.b.Snapshot().Notice == "deleted" })
	require.Len(t, h.store.CallsOf("delete"), 1)
	assert.Equal(t, setRef, h.store.CallsOf("delete")[0].Ref)
}

func TestModelSearchAndHistory(t *testing.T) {
	h := newHarness(t, nil)

	h.keys("/")
	require.True(t, h.m.search.Focused())

	// Keys typed into the search box are not shortcuts
	h.keys("tag:travel")
	assert.Equal(t, StateBrowsing, h.m.State)
	h.press(tea.KeyEnter)
	assert.False(t, h.m.search.Focused())

	h.waitFor(func() bool { return h.b.Snapshot().CurrentSearch == "tag:travel" })
	assert.True(t, h.m.page.CanBack)
	assert.Contains(t, h.m.View(), "search: tag:travel")

	h.keys("h")
	assert.Equal(t, home, h.m.page.URL)
	h.keys("L")
	assert.Equal(t, "tag:travel", h.m.page.CurrentSearch)
}

func TestModelOpenAndAspects(t *testing.T) {
	h := newHarness(t, nil)
	h.store.SetResult(domain.TargetQuery(setRef), []domain.Ref{setRef}, map[domain.Ref]*domain.Descriptor{
		setRef: {
			BlobRef:   setRef,
			CamliType: domain.CamliTypePermanode,
			Permanode: &domain.PermanodeDesc{Attr: map[string][]string{
				domain.AttrTitle:  {"Trip"},
				domain.AttrMember: {string(photoRef)},
			}},
		},
	})

	h.press(tea.KeyEnter)
	h.waitFor(func() bool { return h.b.Snapshot().ShowChooser })
	assert.Equal(t, home+string(setRef), h.m.page.URL)
	assert.Equal(t, "Contents", h.m.page.Aspects[0].Title)

	h.press(tea.KeyTab)
	assert.Equal(t, 1, h.m.page.Active)
	assert.False(t, h.m.isList)
	assert.Contains(t, h.m.View(), "Permanode")

	h.keys("1")
	assert.Equal(t, 0, h.m.page.Active)
	assert.True(t, h.m.isList)
}

func TestModelPasteUploads(t *testing.T) {
	h := newHarness(t, nil)

	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("'" + path + "'\n"), Paste: true})
	h.waitFor(func() bool { return h.b.Snapshot().Notice == "uploaded 1 files" })
	require.Len(t, h.store.CallsOf("upload"), 1)
	assert.Equal(t, "note.txt", h.store.CallsOf("upload")[0].Name)
}

func TestModelUploadMissingFile(t *testing.T) {
	h := newHarness(t, nil)

	h.keys("u")
	require.Equal(t, modalUpload, h.m.modal)
	h.keys("/does/not/exist")
	cmd := h.cmd(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	msg := cmd()
	errMsg, ok := msg.(ErrMsg)
	require.True(t, ok)
	assert.Equal(t, "upload", errMsg.Context)
}

func TestModelOpenWeb(t *testing.T) {
	opener := &fakeOpener{}
	h := newHarness(t, opener)

	cmd := h.cmd(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())
	assert.Equal(t, []string{home}, opener.urls)
}

func TestModelOpenWebWithoutOpener(t *testing.T) {
	h := newHarness(t, nil)

	h.keys("o")
	assert.True(t, h.m.StatusIsErr)
}

func TestModelDiagnostics(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Meta[photoRef] = &domain.Descriptor{BlobRef: photoRef, CamliType: domain.CamliTypeFile}

	h.keys("j")
	h.press(tea.KeySpace)
	h.keys("|")
	require.True(t, h.m.debug.IsVisible())

	h.waitFor(func() bool { return !strings.Contains(h.m.debug.View(), "describing...") })
	assert.Contains(t, h.m.View(), `"camliType": "file"`)

	h.press(tea.KeyEsc)
	assert.False(t, h.m.debug.IsVisible())
}

func TestModelErrMsg(t *testing.T) {
	h := newHarness(t, nil)

	cmd := h.cmd(ErrMsg{Err: errors.New("boom"), Context: "opening web UI"})
	assert.NotNil(t, cmd)
	assert.Equal(t, "opening web UI: boom", h.m.StatusMsg)
	assert.Contains(t, h.m.View(), "boom")
}

func TestModelQuit(t *testing.T) {
	h := newHarness(t, nil)

	cmd := h.cmd(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Error(t, h.m.ctx.Err())
}

func TestWaitLoopCmd(t *testing.T) {
	q := loop.NewQueue()
	ran := false
	q.Post(func() { ran = true })

	msg := WaitLoopCmd(context.Background(), q)()
	lm, ok := msg.(loopMsg)
	require.True(t, ok)
	lm.fn()
	assert.True(t, ran)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, WaitLoopCmd(ctx, q)())
}
