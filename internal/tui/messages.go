package tui

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// loopMsg carries one callback off the event queue. Update runs it, which
// makes the bubbletea update goroutine the browser's event loop.
type loopMsg struct {
	fn func()
}

// ClearStatusMsg clears the status line
type ClearStatusMsg struct{}
