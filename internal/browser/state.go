package browser

import (
	"github.com/mmcdole/blobnav/internal/domain"
)

// AspectTab is one entry of the aspect chooser.
type AspectTab struct {
	Title    string
	Fragment string
	URL      string
}

// RenderState is a snapshot of everything the shell draws.
type RenderState struct {
	URL           string
	Aspects       []AspectTab
	Active        int
	HasActive     bool
	ShowChooser   bool // hidden when there is nothing to choose between
	Selection     []domain.Ref
	Controls      []Control
	Upload        domain.UploadProgress
	UploadText    string
	Errors        []domain.StatusError
	CurrentSearch string
	CurrentSet    domain.Ref
	Status        *domain.ServerStatus
	Notice        string
	CanBack       bool
	CanForward    bool
}

// Snapshot returns the current render state.
func (b *Browser) Snapshot() RenderState {
	aspects, active, ok := b.ctl.Aspects()
	tabs := make([]AspectTab, 0, len(aspects))
	for _, a := range aspects {
		tabs = append(tabs, AspectTab{Title: a.Title, Fragment: a.Fragment, URL: b.ctl.FragmentURL(a.Fragment)})
	}

	st := RenderState{
		Aspects:       tabs,
		Active:        active,
		HasActive:     ok,
		ShowChooser:   len(tabs) > 1,
		Selection:     b.selection.Refs(),
		Controls:      b.Controls(),
		Upload:        b.orch.Progress(),
		UploadText:    UploadText(b.orch.Progress()),
		Errors:        b.ctl.Errors(b.status),
		CurrentSearch: b.ctl.CurrentSearch(),
		CurrentSet:    b.currentSet,
		Status:        b.status,
		Notice:        b.notice,
		CanBack:       b.history.CanBack(),
		CanForward:    b.history.CanForward(),
	}
	if u := b.ctl.CurrentURL(); u != nil {
		st.URL = u.String()
	}
	return st
}
