package nav

import "github.com/mmcdole/blobnav/internal/aspect"

// Navigator is the shell's history. Locations reach the handler in order;
// a location the handler declines is not recorded.
type Navigator struct {
	handle  func(location string) bool
	entries []string
	pos     int
	dir     aspect.Transition
}

// NewNavigator starts a history at an already handled location.
func NewNavigator(handle func(location string) bool, initial string) *Navigator {
	return &Navigator{handle: handle, entries: []string{initial}}
}

// Go navigates to location, dropping any forward history.
func (n *Navigator) Go(location string) bool {
	if !n.handle(location) {
		return false
	}
	n.entries = append(n.entries[:n.pos+1], location)
	n.pos = len(n.entries) - 1
	n.dir = aspect.TransitionNone
	return true
}

// Back returns to the previous location.
func (n *Navigator) Back() bool {
	if n.pos == 0 || !n.handle(n.entries[n.pos-1]) {
		return false
	}
	n.pos--
	n.dir = aspect.TransitionBackward
	return true
}

// Forward re-enters the next location.
func (n *Navigator) Forward() bool {
	if n.pos >= len(n.entries)-1 || !n.handle(n.entries[n.pos+1]) {
		return false
	}
	n.pos++
	n.dir = aspect.TransitionNone
	return true
}

// Current returns the current location.
func (n *Navigator) Current() string { return n.entries[n.pos] }

// CanBack reports whether there is a previous location.
func (n *Navigator) CanBack() bool { return n.pos > 0 }

// CanForward reports whether there is a next location.
func (n *Navigator) CanForward() bool { return n.pos < len(n.entries)-1 }

// Transition returns how the current location was reached.
func (n *Navigator) Transition() aspect.Transition { return n.dir }
