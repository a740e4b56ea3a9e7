package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/blobnav/internal/loop"
)

// Command factories for async operations

// WaitLoopCmd waits for the next queued callback. Exactly one is outstanding
// at a time; Update re-issues it after running the callback.
func WaitLoopCmd(ctx context.Context, q *loop.Queue) tea.Cmd {
	return func() tea.Msg {
		fn, err := q.Next(ctx)
		if err != nil {
			return nil
		}
		return loopMsg{fn: fn}
	}
}

// Opener launches an external viewer for a URL
type Opener interface {
	Open(url string) error
}

// OpenURLCmd opens url in the web UI
func OpenURLCmd(opener Opener, url string) tea.Cmd {
	return func() tea.Msg {
		if err := opener.Open(url); err != nil {
			return ErrMsg{Err: err, Context: "opening web UI"}
		}
		return nil
	}
}

// ClearStatusCmd clears the status line after a delay
func ClearStatusCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}
