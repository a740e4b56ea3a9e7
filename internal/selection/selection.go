// Package selection tracks which result items the user has marked.
package selection

import (
	"sort"

	"github.com/mmcdole/blobnav/internal/domain"
)

// Set is the current selection. The zero value is empty and ready to use.
// It is owned by the event loop and is not safe for concurrent use.
type Set struct {
	refs map[domain.Ref]bool
}

// New returns an empty selection.
func New() *Set {
	return &Set{}
}

// Toggle flips membership of ref and reports whether it is now selected.
func (s *Set) Toggle(ref domain.Ref) bool {
	if s.refs[ref] {
		delete(s.refs, ref)
		return false
	}
	s.Add(ref)
	return true
}

// Add selects ref.
func (s *Set) Add(ref domain.Ref) {
	if !ref.Valid() {
		return
	}
	if s.refs == nil {
		s.refs = make(map[domain.Ref]bool)
	}
	s.refs[ref] = true
}

// Remove deselects ref.
func (s *Set) Remove(ref domain.Ref) {
	delete(s.refs, ref)
}

// Clear deselects everything.
func (s *Set) Clear() {
	s.refs = nil
}

// Has reports whether ref is selected.
func (s *Set) Has(ref domain.Ref) bool {
	return s.refs[ref]
}

// Len returns the number of selected refs.
func (s *Set) Len() int {
	return len(s.refs)
}

// Any reports whether anything is selected.
func (s *Set) Any() bool {
	return len(s.refs) > 0
}

// Refs returns the selected refs in sorted order.
func (s *Set) Refs() []domain.Ref {
	out := make([]domain.Ref, 0, len(s.refs))
	for ref := range s.refs {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Retain drops every ref for which keep returns false.
func (s *Set) Retain(keep func(domain.Ref) bool) {
	for ref := range s.refs {
		if !keep(ref) {
			delete(s.refs, ref)
		}
	}
	if len(s.refs) == 0 {
		s.refs = nil
	}
}
