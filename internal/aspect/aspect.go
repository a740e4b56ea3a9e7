// Package aspect turns the current navigation target into the ordered list
// of views that can show it and picks the active one from the URL fragment.
package aspect

import (
	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/session"
)

// Size is the area available to an aspect's content, in terminal cells.
type Size struct {
	Width  int
	Height int
}

// Transition hints how the content is being entered.
type Transition int

const (
	TransitionNone     Transition = iota
	TransitionBackward            // reached through history back
)

// Content is renderable aspect content.
type Content interface {
	View() string
}

// Factory builds an aspect's content for the given size.
type Factory func(size Size, t Transition) Content

// Aspect is one selectable view over the current target.
type Aspect struct {
	Title    string
	Fragment string
	Content  Factory
}

// Input is everything a source may consult. Sessions may be nil.
type Input struct {
	Target        domain.Ref
	TargetSession *session.Session
	ChildSession  *session.Session
}

// TargetMeta returns the target's metadata as observed by the target session.
func (in Input) TargetMeta() (*domain.Descriptor, bool) {
	return in.meta(in.Target)
}

func (in Input) meta(ref domain.Ref) (*domain.Descriptor, bool) {
	if !ref.Valid() || in.TargetSession == nil {
		return nil, false
	}
	d, ok := in.TargetSession.Meta(ref)
	return d, ok && d != nil
}

// contentMeta returns the metadata of a permanode's camliContent.
func (in Input) contentMeta(d *domain.Descriptor) (*domain.Descriptor, bool) {
	ref, ok := d.ContentRef()
	if !ok {
		return nil, false
	}
	return in.meta(ref)
}

// Source offers at most one aspect for the input.
type Source interface {
	Aspect(in Input) (Aspect, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(in Input) (Aspect, bool)

func (f SourceFunc) Aspect(in Input) (Aspect, bool) { return f(in) }

// Resolver evaluates its sources in order. Sources do not exclude each other;
// priority is expressed only by order.
type Resolver struct {
	sources []Source
}

// NewResolver creates a resolver over sources. With no sources it uses
// DefaultSources.
func NewResolver(sources ...Source) *Resolver {
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	return &Resolver{sources: sources}
}

// Resolve returns the aspects offered for in, in source order.
func (r *Resolver) Resolve(in Input) []Aspect {
	var out []Aspect
	for _, src := range r.sources {
		if a, ok := src.Aspect(in); ok {
			out = append(out, a)
		}
	}
	return out
}

// Select returns the index of the first aspect whose fragment matches, else
// 0. It reports false when there are no aspects at all.
func Select(aspects []Aspect, fragment string) (int, bool) {
	if len(aspects) == 0 {
		return -1, false
	}
	for i, a := range aspects {
		if a.Fragment == fragment {
			return i, true
		}
	}
	return 0, true
}

// Clamp maps a possibly stale index onto aspects, falling back to 0.
func Clamp(aspects []Aspect, idx int) (int, bool) {
	if len(aspects) == 0 {
		return -1, false
	}
	if idx < 0 || idx >= len(aspects) {
		return 0, true
	}
	return idx, true
}
