package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"

	"github.com/mmcdole/blobnav/internal/domain"
)

// subscription is one live query on the search websocket. The server pushes
// a fresh result set whenever the index changes; LoadMore and Refresh resend
// the query.
type subscription struct {
	client *Client
	query  domain.Query
	tag    string
	conn   *websocket.Conn
	events chan domain.Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     conc.WaitGroup

	writeMu sync.Mutex

	mu     sync.Mutex
	limit  int
	closed bool

	closeOnce sync.Once
}

func (c *Client) wsURL(path string) string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + path
	u.RawQuery = ""
	return u.String()
}

// Subscribe implements domain.Store. It dials the search websocket and sends
// the query; the first result page arrives on Events.
func (c *Client) Subscribe(ctx context.Context, q domain.Query) (domain.Subscription, error) {
	d, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	c.subsMu.Lock()
	if c.closed {
		c.subsMu.Unlock()
		return nil, fmt.Errorf("subscribe: %w", domain.ErrClosed)
	}
	c.nextID++
	tag := "q" + strconv.Itoa(c.nextID)
	c.subsMu.Unlock()

	wsURL := c.wsURL(d.SearchRoot + "camli/search/ws")
	conn, _, err := c.dialer.DialContext(ctx, wsURL, c.header())
	if err != nil {
		c.logger.Error("search websocket dial failed", "url", wsURL, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = c.settings.PageSize
	}
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		client: c,
		query:  q,
		tag:    tag,
		conn:   conn,
		events: make(chan domain.Event, 4),
		ctx:    subCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		limit:  limit,
	}

	readTimeout := c.settings.ReadTimeout
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	if err := sub.send(); err != nil {
		cancel()
		conn.Close()
		return nil, err
	}

	c.subsMu.Lock()
	if c.closed {
		c.subsMu.Unlock()
		cancel()
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", domain.ErrClosed)
	}
	c.subs[sub] = struct{}{}
	c.subsMu.Unlock()

	c.logger.Debug("subscribed", "tag", tag, "query", q.Key())
	sub.wg.Go(sub.readLoop)
	sub.wg.Go(sub.pingLoop)
	return sub, nil
}

func (c *Client) forget(sub *subscription) {
	c.subsMu.Lock()
	delete(c.subs, sub)
	c.subsMu.Unlock()
}

// send writes the query with the current page limit.
func (sub *subscription) send() error {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return domain.ErrClosed
	}
	q := sub.query
	q.Limit = sub.limit
	sub.mu.Unlock()

	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	sub.conn.SetWriteDeadline(time.Now().Add(sub.client.settings.WriteTimeout))
	if err := sub.conn.WriteJSON(wsRequest{Tag: sub.tag, Query: searchRequest{Query: q}}); err != nil {
		return fmt.Errorf("%w: search websocket: %v", ErrUnavailable, err)
	}
	return nil
}

func (sub *subscription) emit(ev domain.Event) {
	select {
	case sub.events <- ev:
	case <-sub.done:
	}
}

func (sub *subscription) isClosed() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.closed
}

// readLoop is the only sender on events and closes it on exit.
func (sub *subscription) readLoop() {
	defer close(sub.events)
	logger := sub.client.logger

	if st, err := sub.client.Status(sub.ctx); err == nil {
		sub.emit(domain.Event{Kind: domain.EventStatus, Status: st})
	} else {
		logger.Debug("status unavailable", "error", err)
	}

	for {
		_, message, err := sub.conn.ReadMessage()
		if err != nil {
			if !sub.isClosed() {
				logger.Warn("search websocket closed", "tag", sub.tag, "error", err)
				sub.emit(domain.Event{Kind: domain.EventError, Err: fmt.Errorf("%w: search websocket: %v", ErrUnavailable, err)})
			}
			return
		}
		sub.conn.SetReadDeadline(time.Now().Add(sub.client.settings.ReadTimeout))

		var resp wsResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			logger.Warn("malformed search frame", "tag", sub.tag, "error", err)
			continue
		}
		if resp.Tag != sub.tag {
			continue
		}
		if resp.Error != "" {
			sub.emit(domain.Event{Kind: domain.EventError, Err: errors.New(resp.Error)})
			continue
		}
		if resp.Result == nil {
			continue
		}
		res := resp.Result.toDomain()
		sub.client.cacheDescriptors(res.Description)
		sub.emit(domain.Event{Kind: domain.EventResults, Results: res})
	}
}

func (sub *subscription) pingLoop() {
	for {
		select {
		case <-sub.done:
			return
		case <-time.After(sub.client.settings.PingTimeout):
			deadline := time.Now().Add(sub.client.settings.WriteTimeout)
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				sub.client.logger.Debug("search websocket ping failed", "tag", sub.tag, "error", err)
				return
			}
		}
	}
}

func (sub *subscription) Events() <-chan domain.Event { return sub.events }

func (sub *subscription) LoadMore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return domain.ErrClosed
	}
	sub.limit += sub.client.settings.PageSize
	sub.mu.Unlock()
	return sub.send()
}

func (sub *subscription) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return sub.send()
}

// Close ends the subscription. Idempotent. The close handshake and the wait
// for the read and ping loops happen in the background; Client.Close waits
// for them.
func (sub *subscription) Close() error {
	sub.closeOnce.Do(func() {
		sub.client.forget(sub)

		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
		close(sub.done)
		sub.cancel()

		sub.client.closing.Go(sub.shutdown)
	})
	return nil
}

func (sub *subscription) shutdown() {
	sub.writeMu.Lock()
	sub.conn.SetWriteDeadline(time.Now().Add(sub.client.settings.WriteTimeout))
	sub.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	sub.writeMu.Unlock()

	sub.conn.Close()
	sub.wg.Wait()
}
