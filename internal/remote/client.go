// Package remote talks to a blob server over HTTP, with live searches on a
// websocket. Client implements domain.Store.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"github.com/sourcegraph/conc"

	"github.com/mmcdole/blobnav/internal/domain"
)

const userAgent = "blobnav/1.0"

// ErrAuthFailed indicates the server rejected the credentials.
var ErrAuthFailed = errors.New("authentication failed")

// ErrUnavailable indicates the server could not be reached.
var ErrUnavailable = errors.New("server unavailable")

// Settings tunes the transport.
type Settings struct {
	HttpTimeout        time.Duration
	WsHandshakeTimeout time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	DescribeTTL        time.Duration
	PageSize           int
}

func DefaultSettings() *Settings {
	return &Settings{
		HttpTimeout:        30 * time.Second,
		WsHandshakeTimeout: 5 * time.Second,
		PingTimeout:        10 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        30 * time.Second,
		DescribeTTL:        1 * time.Minute,
		PageSize:           50,
	}
}

// Options identifies the server and the credentials to use.
type Options struct {
	URL      string // server base URL
	UIRoot   string // defaults to /ui/
	Username string
	Password string
	Settings *Settings
}

// Client is a remote domain.Store.
type Client struct {
	base     *url.URL
	uiRoot   string
	username string
	password string
	settings *Settings

	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger

	// Descriptors by ref; mutations evict the touched permanode.
	describeCache *cache.Cache

	discoMu sync.Mutex
	disco   *discovery

	subsMu sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
	nextID int

	// Subscriptions still shutting down their sockets.
	closing conc.WaitGroup
}

// New creates a client for opts.URL. Nothing is fetched until first use.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", opts.URL)
	}
	settings := opts.Settings
	if settings == nil {
		settings = DefaultSettings()
	}
	uiRoot := opts.UIRoot
	if uiRoot == "" {
		uiRoot = "/ui/"
	}

	return &Client{
		base:     base,
		uiRoot:   uiRoot,
		username: opts.Username,
		password: opts.Password,
		settings: settings,
		httpClient: &http.Client{
			Timeout: settings.HttpTimeout,
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.WsHandshakeTimeout,
		},
		logger:        logger,
		describeCache: cache.New(settings.DescribeTTL, 2*settings.DescribeTTL),
		subs:          make(map[*subscription]struct{}),
	}, nil
}

// header returns the headers every request carries.
func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	if c.username != "" || c.password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
		h.Set("Authorization", "Basic "+creds)
	}
	return h
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// doRequest performs an authenticated HTTP request and returns the body of a
// 2xx response.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader) ([]byte, error) {
	reqURL := c.url(path, query)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = c.header()
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("remote request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("remote request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAuthFailed
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.Error("remote request error", "status", resp.StatusCode, "body", string(data))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	data, err := c.doRequest(ctx, http.MethodGet, path, query, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	data, err := c.doRequest(ctx, http.MethodPost, path, nil, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// discover fetches the server's handler roots once. Failures are not cached.
func (c *Client) discover(ctx context.Context) (*discovery, error) {
	c.discoMu.Lock()
	defer c.discoMu.Unlock()
	if c.disco != nil {
		return c.disco, nil
	}

	var d discovery
	if err := c.getJSON(ctx, c.uiRoot, url.Values{"camli.mode": {"config"}}, &d); err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	if d.SearchRoot == "" {
		d.SearchRoot = "/my-search/"
	}
	if d.BlobRoot == "" {
		d.BlobRoot = "/bs/"
	}
	if d.StatusRoot == "" {
		d.StatusRoot = "/status/"
	}
	c.logger.Info("discovered server", "search", d.SearchRoot, "blobs", d.BlobRoot, "signing", d.Signing != nil)
	c.disco = &d
	return c.disco, nil
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (*domain.ServerStatus, error) {
	d, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	var st domain.ServerStatus
	if err := c.getJSON(ctx, d.StatusRoot+"status.json", nil, &st); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &st, nil
}

// Describe implements domain.Store. Results are cached for DescribeTTL.
func (c *Client) Describe(ctx context.Context, ref domain.Ref) (*domain.Descriptor, error) {
	if cached, found := c.describeCache.Get(string(ref)); found {
		if d, ok := cached.(*domain.Descriptor); ok {
			return d, nil
		}
	}

	d, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	var resp describeResponse
	q := url.Values{"blobref": {string(ref)}}
	if err := c.getJSON(ctx, d.SearchRoot+"camli/search/describe", q, &resp); err != nil {
		return nil, fmt.Errorf("describe %s: %w", ref, err)
	}
	desc, ok := resp.Meta[ref]
	if !ok || desc == nil {
		return nil, fmt.Errorf("describe %s: %w", ref, domain.ErrNotFound)
	}
	c.describeCache.Set(string(ref), desc, cache.DefaultExpiration)
	return desc, nil
}

// Query runs one search page over plain HTTP.
func (c *Client) Query(ctx context.Context, q domain.Query, cont string) (*domain.SearchResult, error) {
	d, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = c.settings.PageSize
	}
	var resp searchResponse
	if err := c.postJSON(ctx, d.SearchRoot+"camli/search/query", searchRequest{Query: q, Continue: cont}, &resp); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return resp.toDomain(), nil
}

func (c *Client) cacheDescriptors(meta map[domain.Ref]*domain.Descriptor) {
	for ref, d := range meta {
		if d != nil {
			c.describeCache.Set(string(ref), d, cache.DefaultExpiration)
		}
	}
}

// Close ends every subscription. The client is unusable afterwards.
func (c *Client) Close() error {
	c.subsMu.Lock()
	c.closed = true
	subs := c.subs
	c.subs = make(map[*subscription]struct{})
	c.subsMu.Unlock()

	for sub := range subs {
		sub.Close()
	}
	c.closing.Wait()
	c.describeCache.Flush()
	c.httpClient.CloseIdleConnections()
	return nil
}

var _ domain.Store = (*Client)(nil)
