package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/blobnav/internal/blobref"
	"github.com/mmcdole/blobnav/internal/domain"
)

const signerRef = domain.Ref("sha224-5ec")

// fakeServer serves the handlers the client talks to.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	password  string
	blobs     map[domain.Ref][]byte
	meta      map[domain.Ref]*domain.Descriptor
	result    searchResponse
	queries   []wsRequest
	frames    []string
	describes int
	dropAfter bool // close the websocket after the first response
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		blobs: make(map[domain.Ref][]byte),
		meta:  make(map[domain.Ref]*domain.Descriptor),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ui/", fs.handleDiscovery)
	mux.HandleFunc("/status/status.json", fs.handleStatus)
	mux.HandleFunc("/my-search/camli/search/describe", fs.handleDescribe)
	mux.HandleFunc("/my-search/camli/search/ws", fs.handleWS)
	mux.HandleFunc("/bs/camli/upload", fs.handleUpload)
	mux.HandleFunc("/sighelper/camli/sig/sign", fs.handleSign)

	fs.Server = httptest.NewServer(fs.auth(mux))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		want := fs.password
		fs.mu.Unlock()
		if want != "" {
			if _, pass, ok := r.BasicAuth(); !ok || pass != want {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (fs *fakeServer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("camli.mode") != "config" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, discovery{
		SearchRoot: "/my-search/",
		BlobRoot:   "/bs/",
		StatusRoot: "/status/",
		Signing:    &signing{PublicKeyBlobRef: signerRef, SignHandler: "/sighelper/camli/sig/sign"},
	})
}

func (fs *fakeServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, domain.ServerStatus{
		Version: "test",
		Errors:  []domain.StatusError{{Error: "index is behind"}},
	})
}

func (fs *fakeServer) handleDescribe(w http.ResponseWriter, r *http.Request) {
	ref := domain.Ref(r.URL.Query().Get("blobref"))
	fs.mu.Lock()
	fs.describes++
	d, ok := fs.meta[ref]
	fs.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, describeResponse{Meta: map[domain.Ref]*domain.Descriptor{ref: d}})
}

func (fs *fakeServer) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		fs.mu.Lock()
		fs.queries = append(fs.queries, req)
		fs.frames = append(fs.frames, string(data))
		res := fs.result
		drop := fs.dropAfter
		fs.mu.Unlock()

		if limit := req.Query.Limit; limit > 0 && len(res.Blobs) > limit {
			res.Blobs = res.Blobs[:limit]
			res.Continue = "more"
		}
		if err := conn.WriteJSON(wsResponse{Tag: req.Tag, Result: &res}); err != nil {
			return
		}
		if drop {
			return
		}
	}
}

func (fs *fakeServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var resp uploadResponse
	for name, files := range r.MultipartForm.File {
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			data, _ := io.ReadAll(f)
			f.Close()

			ref := domain.Ref(name)
			if blobref.SHA224(data) != ref {
				http.Error(w, "digest mismatch", http.StatusBadRequest)
				return
			}
			fs.mu.Lock()
			fs.blobs[ref] = data
			fs.mu.Unlock()
			resp.Received = append(resp.Received, struct {
				BlobRef domain.Ref `json:"blobRef"`
				Size    int64      `json:"size"`
			}{ref, int64(len(data))})
		}
	}
	writeJSON(w, resp)
}

func (fs *fakeServer) handleSign(w http.ResponseWriter, r *http.Request) {
	unsigned := r.FormValue("json")
	if !strings.HasSuffix(unsigned, "}") {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	io.WriteString(w, strings.TrimSuffix(unsigned, "}")+`,"camliSig":"fake"}`)
}

func (fs *fakeServer) blob(ref domain.Ref) map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var m map[string]any
	if err := json.Unmarshal(fs.blobs[ref], &m); err != nil {
		return nil
	}
	return m
}

func (fs *fakeServer) refs() []domain.Ref {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]domain.Ref, 0, len(fs.blobs))
	for ref := range fs.blobs {
		out = append(out, ref)
	}
	return out
}

func (fs *fakeServer) Describes() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.describes
}

func (fs *fakeServer) Queries() []wsRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]wsRequest(nil), fs.queries...)
}

func (fs *fakeServer) Frames() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.frames...)
}

func newTestClient(t *testing.T, fs *fakeServer, password string) *Client {
	t.Helper()
	settings := DefaultSettings()
	settings.PageSize = 2
	c, err := New(Options{URL: fs.URL, Username: "user", Password: password, Settings: settings}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func next(t *testing.T, sub domain.Subscription) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Options{URL: "ftp://example.com"}, nil)
	assert.Error(t, err)
	_, err = New(Options{URL: "://"}, nil)
	assert.Error(t, err)
}

func TestSubscribePushesStatusThenResults(t *testing.T) {
	fs := newFakeServer(t)
	a, b := domain.Ref("sha224-aa"), domain.Ref("sha224-bb")
	fs.result = searchResponse{
		Blobs: []searchBlob{{Blob: a}, {Blob: b}},
		Description: &describeResponse{Meta: map[domain.Ref]*domain.Descriptor{
			a: {BlobRef: a, CamliType: domain.CamliTypePermanode, Permanode: &domain.PermanodeDesc{}},
		}},
	}
	c := newTestClient(t, fs, "")

	sub, err := c.Subscribe(context.Background(), domain.TextQuery("tag:funny"))
	require.NoError(t, err)

	ev := next(t, sub)
	require.Equal(t, domain.EventStatus, ev.Kind)
	assert.Equal(t, "test", ev.Status.Version)
	assert.Len(t, ev.Status.Errors, 1)

	ev = next(t, sub)
	require.Equal(t, domain.EventResults, ev.Kind)
	assert.Equal(t, []domain.Ref{a, b}, ev.Results.Blobs)
	assert.Empty(t, ev.Results.Continue)

	queries := fs.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "tag:funny", queries[0].Query.Expression)
	assert.Equal(t, 2, queries[0].Query.Limit)

	// Descriptions from the search fill the describe cache.
	d, err := c.Describe(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, d.IsPermanode())
	assert.Zero(t, fs.Describes())
}

func TestSubscribeForwardsRawConstraint(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs, "")

	raw := `{"permanode":{"attr":"tag","valueMatches":{"contains":"x"}}}`
	q, err := domain.ParseSearch(domain.RawQueryPrefix + raw)
	require.NoError(t, err)

	sub, err := c.Subscribe(context.Background(), q)
	require.NoError(t, err)
	next(t, sub) // status
	next(t, sub) // results

	frames := fs.Frames()
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], `"constraint":`+raw)
}

func TestLoadMoreResendsWithLargerLimit(t *testing.T) {
	fs := newFakeServer(t)
	fs.result = searchResponse{Blobs: []searchBlob{{Blob: "sha224-01"}, {Blob: "sha224-02"}, {Blob: "sha224-03"}}}
	c := newTestClient(t, fs, "")

	sub, err := c.Subscribe(context.Background(), domain.MatchAll())
	require.NoError(t, err)
	next(t, sub) // status

	ev := next(t, sub)
	assert.Len(t, ev.Results.Blobs, 2)
	assert.Equal(t, "more", ev.Results.Continue)

	require.NoError(t, sub.LoadMore(context.Background()))
	ev = next(t, sub)
	assert.Len(t, ev.Results.Blobs, 3)
	assert.Empty(t, ev.Results.Continue)

	require.NoError(t, sub.Refresh(context.Background()))
	next(t, sub)

	queries := fs.Queries()
	require.Len(t, queries, 3)
	assert.Equal(t, 4, queries[1].Query.Limit)
	assert.Equal(t, 4, queries[2].Query.Limit)
	for _, q := range queries {
		assert.Equal(t, queries[0].Tag, q.Tag)
	}
}

func TestServerDropEmitsTransportError(t *testing.T) {
	fs := newFakeServer(t)
	fs.dropAfter = true
	c := newTestClient(t, fs, "")

	sub, err := c.Subscribe(context.Background(), domain.MatchAll())
	require.NoError(t, err)
	next(t, sub) // status
	next(t, sub) // results

	ev := next(t, sub)
	require.Equal(t, domain.EventError, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrUnavailable)

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestCloseEndsSubscription(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs, "")

	sub, err := c.Subscribe(context.Background(), domain.MatchAll())
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	for range sub.Events() {
	}
	assert.ErrorIs(t, sub.LoadMore(context.Background()), domain.ErrClosed)

	require.NoError(t, c.Close())
	_, err = c.Subscribe(context.Background(), domain.MatchAll())
	assert.ErrorIs(t, err, domain.ErrClosed)
}

func TestCloseDoesNotWaitForWriter(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs, "")

	s, err := c.Subscribe(context.Background(), domain.MatchAll())
	require.NoError(t, err)
	sub := s.(*subscription)

	// A send stuck on a slow socket holds the write lock.
	sub.writeMu.Lock()
	closed := make(chan struct{})
	go func() {
		sub.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind the writer")
	}
	assert.ErrorIs(t, sub.LoadMore(context.Background()), domain.ErrClosed)

	sub.writeMu.Unlock()
	require.NoError(t, c.Close())
	for range sub.Events() {
	}
}

func TestDescribeCachesUntilClaim(t *testing.T) {
	fs := newFakeServer(t)
	ref := domain.Ref("sha224-cc")
	fs.meta[ref] = &domain.Descriptor{BlobRef: ref, CamliType: domain.CamliTypePermanode, Permanode: &domain.PermanodeDesc{}}
	c := newTestClient(t, fs, "")
	ctx := context.Background()

	_, err := c.Describe(ctx, ref)
	require.NoError(t, err)
	_, err = c.Describe(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.Describes())

	require.NoError(t, c.SetAttribute(ctx, ref, domain.AttrTitle, "hello"))
	_, err = c.Describe(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, fs.Describes())

	_, err = c.Describe(ctx, "sha224-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUploadFile(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs, "")

	data := []byte("hello world")
	ref, err := c.UploadFile(context.Background(), domain.File{
		Name: "hello.txt",
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(string(data))), nil },
	})
	require.NoError(t, err)

	schema := fs.blob(ref)
	require.NotNil(t, schema)
	assert.Equal(t, "file", schema["camliType"])
	assert.Equal(t, "hello.txt", schema["fileName"])

	fs.mu.Lock()
	content := fs.blobs[blobref.SHA224(data)]
	fs.mu.Unlock()
	assert.Equal(t, data, content)
}

func TestMutationsAreSigned(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs, "")
	ctx := context.Background()

	pn, err := c.CreatePermanode(ctx)
	require.NoError(t, err)
	perm := fs.blob(pn)
	require.NotNil(t, perm)
	assert.Equal(t, "permanode", perm["camliType"])
	assert.Equal(t, string(signerRef), perm["camliSigner"])
	assert.Equal(t, "fake", perm["camliSig"])
	assert.NotEmpty(t, perm["random"])

	pn2, err := c.CreatePermanode(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, pn, pn2)

	require.NoError(t, c.AddAttribute(ctx, pn, domain.AttrMember, string(pn2)))
	require.NoError(t, c.Delete(ctx, pn2))

	var claims []map[string]any
	for _, ref := range fs.refs() {
		if m := fs.blob(ref); m != nil && m["camliType"] == "claim" {
			claims = append(claims, m)
		}
	}

	require.Len(t, claims, 2)
	byType := map[string]map[string]any{}
	for _, cl := range claims {
		byType[cl["claimType"].(string)] = cl
	}
	assert.Equal(t, string(pn), byType["add-attribute"]["permaNode"])
	assert.Equal(t, string(pn2), byType["add-attribute"]["value"])
	assert.Equal(t, string(pn2), byType["delete"]["target"])
}

func TestAuthFailure(t *testing.T) {
	fs := newFakeServer(t)
	fs.password = "secret"

	bad := newTestClient(t, fs, "wrong")
	_, err := bad.Describe(context.Background(), "sha224-aa")
	assert.ErrorIs(t, err, ErrAuthFailed)

	good := newTestClient(t, fs, "secret")
	st, err := good.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", st.Version)
}
