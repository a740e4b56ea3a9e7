// Package storetest provides a scripted in-memory domain.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mmcdole/blobnav/internal/domain"
)

// Call records one mutation issued against the fake.
type Call struct {
	Op        string
	Ref       domain.Ref
	Name      string
	Value     string
	Permanode domain.Ref
}

// Fake is a goroutine-safe scripted store. Results and Meta script what
// subscriptions and Describe return; the Fail* hooks inject per-call errors.
type Fake struct {
	mu sync.Mutex

	// Results maps Query.Key() to the first page pushed on Subscribe.
	Results map[string]*domain.SearchResult
	// Meta backs Describe.
	Meta map[domain.Ref]*domain.Descriptor

	SubscribeErr     error
	FailUpload       func(name string) error
	FailCreate       func(n int) error
	FailSetAttribute func(permanode domain.Ref, name, value string) error
	FailAddAttribute func(permanode domain.Ref, name, value string) error
	FailDelete       func(ref domain.Ref) error
	Block            chan struct{} // if non-nil, mutations wait on it

	subs      []*Subscription
	calls     []Call
	creates   int
	describes int
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Results: make(map[string]*domain.SearchResult),
		Meta:    make(map[domain.Ref]*domain.Descriptor),
	}
}

// SetResult scripts the first page for q.
func (f *Fake) SetResult(q domain.Query, refs []domain.Ref, meta map[domain.Ref]*domain.Descriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[q.Key()] = &domain.SearchResult{Blobs: refs, Description: meta}
}

// Subscriptions returns every subscription opened so far.
func (f *Fake) Subscriptions() []*Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Subscription(nil), f.subs...)
}

// Calls returns the recorded mutations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded mutations with the given op name.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Describes returns how many Describe calls were made.
func (f *Fake) Describes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describes
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Block == nil {
		return nil
	}
	select {
	case <-f.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) Subscribe(ctx context.Context, q domain.Query) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	sub := &Subscription{query: q, events: make(chan domain.Event, 16)}
	f.subs = append(f.subs, sub)
	if res, ok := f.Results[q.Key()]; ok {
		sub.events <- domain.Event{Kind: domain.EventResults, Results: res}
	} else {
		sub.events <- domain.Event{Kind: domain.EventResults, Results: &domain.SearchResult{}}
	}
	return sub, nil
}

func (f *Fake) Describe(ctx context.Context, ref domain.Ref) (*domain.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describes++
	if d, ok := f.Meta[ref]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("describe %s: %w", ref, domain.ErrNotFound)
}

func (f *Fake) UploadFile(ctx context.Context, file domain.File) (domain.Ref, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	if f.FailUpload != nil {
		if err := f.FailUpload(file.Name); err != nil {
			return "", err
		}
	}
	if file.Open != nil {
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		_, _ = io.Copy(io.Discard, rc)
		rc.Close()
	}
	ref := domain.Ref("sha224-f" + fmt.Sprintf("%x", []byte(file.Name)))
	f.record(Call{Op: "upload", Ref: ref, Name: file.Name})
	return ref, nil
}

func (f *Fake) CreatePermanode(ctx context.Context) (domain.Ref, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.creates++
	n := f.creates
	fail := f.FailCreate
	f.mu.Unlock()

	if fail != nil {
		if err := fail(n); err != nil {
			return "", err
		}
	}
	ref := domain.Ref(fmt.Sprintf("sha224-p%04d", n))
	f.record(Call{Op: "create", Ref: ref})
	return ref, nil
}

func (f *Fake) SetAttribute(ctx context.Context, permanode domain.Ref, name, value string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	if f.FailSetAttribute != nil {
		if err := f.FailSetAttribute(permanode, name, value); err != nil {
			return err
		}
	}
	f.record(Call{Op: "set", Permanode: permanode, Name: name, Value: value})
	return nil
}

func (f *Fake) AddAttribute(ctx context.Context, permanode domain.Ref, name, value string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	if f.FailAddAttribute != nil {
		if err := f.FailAddAttribute(permanode, name, value); err != nil {
			return err
		}
	}
	f.record(Call{Op: "add", Permanode: permanode, Name: name, Value: value})
	return nil
}

func (f *Fake) DelAttribute(ctx context.Context, permanode domain.Ref, name, value string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.record(Call{Op: "del", Permanode: permanode, Name: name, Value: value})
	return nil
}

func (f *Fake) Delete(ctx context.Context, ref domain.Ref) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	if f.FailDelete != nil {
		if err := f.FailDelete(ref); err != nil {
			return err
		}
	}
	f.record(Call{Op: "delete", Ref: ref})
	return nil
}

func (f *Fake) Close() error { return nil }

// Subscription is the fake's subscription handle.
type Subscription struct {
	mu        sync.Mutex
	query     domain.Query
	events    chan domain.Event
	closes    int
	refreshes int
	loads     int
}

// Query returns the subscribed query.
func (s *Subscription) Query() domain.Query { return s.query }

// Push delivers an event unless the subscription is closed.
func (s *Subscription) Push(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return
	}
	s.events <- ev
}

// Closes returns how many times Close was called.
func (s *Subscription) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Refreshes returns how many times Refresh was called.
func (s *Subscription) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// Loads returns how many times LoadMore was called.
func (s *Subscription) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func (s *Subscription) Events() <-chan domain.Event { return s.events }

func (s *Subscription) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	return nil
}

func (s *Subscription) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.refreshes++
	s.mu.Unlock()
	return nil
}

func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		close(s.events)
	}
	return nil
}

var _ domain.Store = (*Fake)(nil)
