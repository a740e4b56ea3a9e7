package browser

import "github.com/mmcdole/blobnav/internal/domain"

// KeyAction tells the shell what a key press asks of it.
type KeyAction int

const (
	KeyNone KeyAction = iota
	KeyFocusSearch
	KeyDiagnostics
)

// Diagnostics is the optional debug console.
type Diagnostics interface {
	Open(client DebugClient)
}

// DebugClient is what the debug console may inspect.
type DebugClient struct {
	Selected []domain.Ref
	Store    domain.Store
}

// HandleKey handles the page-level shortcuts. Keys typed into an input are
// never shortcuts.
func (b *Browser) HandleKey(r rune, inInput bool) KeyAction {
	if inInput {
		return KeyNone
	}
	switch r {
	case '/':
		return KeyFocusSearch
	case '|':
		if b.diagnostics == nil {
			return KeyNone
		}
		b.diagnostics.Open(DebugClient{Selected: b.selection.Refs(), Store: b.store})
		return KeyDiagnostics
	}
	return KeyNone
}
