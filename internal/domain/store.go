package domain

import (
	"context"
	"io"
)

// Store is the backing content-addressable store. Implementations must be
// safe for concurrent use; every method may block on I/O.
type Store interface {
	// Subscribe begins a live subscription to the query's result set.
	// The first result page is pushed without further calls.
	Subscribe(ctx context.Context, q Query) (Subscription, error)

	// Describe returns metadata for a single blob.
	Describe(ctx context.Context, ref Ref) (*Descriptor, error)

	// === Mutations ===
	UploadFile(ctx context.Context, f File) (Ref, error)
	CreatePermanode(ctx context.Context) (Ref, error)
	SetAttribute(ctx context.Context, permanode Ref, name, value string) error
	AddAttribute(ctx context.Context, permanode Ref, name, value string) error
	DelAttribute(ctx context.Context, permanode Ref, name, value string) error
	Delete(ctx context.Context, ref Ref) error

	Close() error
}

// EventKind distinguishes subscription push notifications
type EventKind int

const (
	EventResults EventKind = iota // Result set changed
	EventStatus                   // Server status changed
	EventError                    // Transport failure
)

func (k EventKind) String() string {
	switch k {
	case EventResults:
		return "results"
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one push notification from a subscription.
type Event struct {
	Kind    EventKind
	Results *SearchResult
	Status  *ServerStatus
	Err     error
}

// Subscription is a live query handle. Events is closed after Close.
type Subscription interface {
	Events() <-chan Event

	// LoadMore requests the next page; the merged result set is pushed.
	LoadMore(ctx context.Context) error

	// Refresh re-runs the query if the store cannot push changes itself.
	Refresh(ctx context.Context) error

	Close() error
}

// File is an upload source.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}
