package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/selection"
)

// NewSetTitle is the title given to sets created from the selection.
const NewSetTitle = "New set"

// Refresher re-runs the live queries affected by a mutation.
type Refresher interface {
	RefreshSessions()
}

// Orchestrator issues bulk mutations. Its methods must be called on the
// event loop; callbacks run there too.
type Orchestrator struct {
	store       domain.Store
	poster      loop.Poster
	selection   *selection.Set
	refresher   Refresher
	observer    domain.ProgressObserver
	logger      *slog.Logger
	concurrency int

	progress domain.UploadProgress
}

// New creates an orchestrator. refresher may be nil.
func New(store domain.Store, poster loop.Poster, sel *selection.Set, refresher Refresher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if sel == nil {
		sel = selection.New()
	}
	return &Orchestrator{
		store:     store,
		poster:    poster,
		selection: sel,
		refresher: refresher,
		observer:  domain.NoOpObserver{},
		logger:    logger,
	}
}

// SetObserver registers the receiver of upload progress.
func (o *Orchestrator) SetObserver(obs domain.ProgressObserver) {
	if obs == nil {
		obs = domain.NoOpObserver{}
	}
	o.observer = obs
}

// SetConcurrency bounds concurrent store calls per batch; 0 is unbounded.
func (o *Orchestrator) SetConcurrency(n int) {
	o.concurrency = n
}

// Progress returns the current upload progress.
func (o *Orchestrator) Progress() domain.UploadProgress {
	return o.progress
}

// SettledFunc is told how many items of a bulk mutation failed.
type SettledFunc func(failed int)

// AddMembers adds refs to the container permanode.
func (o *Orchestrator) AddMembers(container domain.Ref, refs []domain.Ref, done SettledFunc) {
	o.each("add members", refs, func(ctx context.Context, ref domain.Ref) error {
		return o.store.AddAttribute(ctx, container, domain.AttrMember, string(ref))
	}, done)
}

// Delete deletes every ref.
func (o *Orchestrator) Delete(refs []domain.Ref, done SettledFunc) {
	o.each("delete", refs, func(ctx context.Context, ref domain.Ref) error {
		return o.store.Delete(ctx, ref)
	}, done)
}

// Tag adds each tag to every ref.
func (o *Orchestrator) Tag(refs []domain.Ref, tags []string, done SettledFunc) {
	type claim struct {
		ref domain.Ref
		tag string
	}
	var claims []claim
	for _, ref := range refs {
		for _, tag := range tags {
			claims = append(claims, claim{ref, tag})
		}
	}
	eachOf(o, "tag", claims, func(ctx context.Context, c claim) error {
		return o.store.AddAttribute(ctx, c.ref, domain.AttrTag, c.tag)
	}, done)
}

// Untag removes tag from every ref.
func (o *Orchestrator) Untag(refs []domain.Ref, tag string, done SettledFunc) {
	o.each("untag", refs, func(ctx context.Context, ref domain.Ref) error {
		return o.store.DelAttribute(ctx, ref, domain.AttrTag, tag)
	}, done)
}

// CreateSet creates a permanode, titles it unless title is empty, and adds
// refs to it. created receives the new set once it exists; the members follow
// as a bulk add.
func (o *Orchestrator) CreateSet(title string, refs []domain.Ref, created func(domain.Ref, error), done SettledFunc) {
	go func() {
		ctx := context.Background()
		set, err := o.store.CreatePermanode(ctx)
		if err == nil && title != "" {
			err = o.store.SetAttribute(ctx, set, domain.AttrTitle, title)
		}
		o.poster.Post(func() {
			if created != nil {
				created(set, err)
			}
			if err != nil {
				o.logger.Error("failed to create set", "title", title, "error", err)
				if done != nil {
					done(len(refs))
				}
				return
			}
			o.AddMembers(set, refs, done)
		})
	}()
}

func (o *Orchestrator) each(name string, refs []domain.Ref, op func(context.Context, domain.Ref) error, done SettledFunc) {
	eachOf(o, name, refs, op, done)
}

// eachOf runs a join-all-settled bulk mutation. On settlement the selection
// is cleared and the affected sessions refresh, whatever the failures.
func eachOf[T any](o *Orchestrator, name string, items []T, op func(context.Context, T) error, done SettledFunc) {
	o.logger.Debug("starting bulk mutation", "op", name, "count", len(items))
	Gather(context.Background(), o.poster, items, Options{MaxConcurrency: o.concurrency}, op,
		func(out Outcome[T]) {
			if out.Err != nil {
				o.logger.Error("bulk mutation item failed", "op", name, "item", fmt.Sprint(out.Item), "error", out.Err)
			}
		},
		func(outcomes []Outcome[T]) {
			failed := len(Failed(outcomes))
			o.logger.Debug("bulk mutation settled", "op", name, "count", len(outcomes), "failed", failed)
			o.selection.Clear()
			if o.refresher != nil {
				o.refresher.RefreshSessions()
			}
			if done != nil {
				done(failed)
			}
		},
	)
}
