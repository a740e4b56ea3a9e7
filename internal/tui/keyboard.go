package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/blobnav/internal/browser"
)

// handleKeyMsg handles keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	// Dropped files arrive as a bracketed paste of their paths
	if msg.Paste && !m.inInput() {
		return m, m.upload(browser.PastedPaths(string(msg.Runes)))
	}

	// Handle state-specific keys
	switch m.State {
	case StateHelp:
		m.State = StateBrowsing
		return m, nil

	case StateConfirmDelete:
		switch {
		case key.Matches(msg, Keys.Confirm):
			m.browser.DeleteSelection()
			m.State = StateBrowsing
		case key.Matches(msg, Keys.Deny):
			m.State = StateBrowsing
		}
		return m, nil
	}

	// Route to active overlay if any
	if m.debug.IsVisible() {
		return m, m.debug.Update(msg)
	}
	if m.input.IsVisible() {
		return m.updateInputModal(msg)
	}
	if m.search.Focused() {
		return m.updateSearch(msg)
	}
	if m.list.IsFilterTyping() {
		return m, m.list.Update(msg)
	}

	// Page-level shortcuts
	if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
		switch m.browser.HandleKey(msg.Runes[0], false) {
		case browser.KeyFocusSearch:
			m.search.SetValue(m.page.CurrentSearch)
			m.search.CursorEnd()
			return m, m.search.Focus()
		case browser.KeyDiagnostics:
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.State = StateHelp
		return m, nil

	case key.Matches(msg, Keys.Escape):
		if m.list.IsFiltering() {
			m.list.ClearFilter()
		}
		return m, nil

	// Navigation
	case key.Matches(msg, Keys.Enter):
		if it, ok := m.list.Selected(); ok && m.isList {
			m.browser.Open(it.Ref)
		}
		return m, nil

	case key.Matches(msg, Keys.Back):
		m.browser.Back()
		return m, nil

	case key.Matches(msg, Keys.Forward):
		m.browser.Forward()
		return m, nil

	case key.Matches(msg, Keys.Home):
		m.browser.Home()
		return m, nil

	case key.Matches(msg, Keys.Roots):
		m.browser.SearchRoots()
		return m, nil

	case key.Matches(msg, Keys.NextAspect):
		m.cycleAspect(1)
		return m, nil

	case key.Matches(msg, Keys.PrevAspect):
		m.cycleAspect(-1)
		return m, nil

	// Selection
	case key.Matches(msg, Keys.Select):
		if it, ok := m.list.Selected(); ok && m.isList {
			m.browser.ToggleSelect(it.Ref)
		}
		return m, nil

	case key.Matches(msg, Keys.ClearSelection):
		m.browser.ClearSelection()
		return m, nil

	case key.Matches(msg, Keys.NewSet):
		if len(m.page.Selection) == 0 {
			return m, m.setStatus("Nothing selected", true)
		}
		m.browser.CreateSetWithSelection()
		return m, nil

	case key.Matches(msg, Keys.AddToSet):
		if !m.browser.AddSelectionToCurrentSet() {
			return m, m.setStatus("No current set", true)
		}
		return m, nil

	case key.Matches(msg, Keys.SelectAsSet):
		if !m.browser.SelectAsCurrentSet() {
			return m, m.setStatus("Select a single set first", true)
		}
		return m, m.setStatus("Current set changed", false)

	case key.Matches(msg, Keys.Tag):
		if len(m.page.Selection) == 0 {
			return m, m.setStatus("Nothing selected", true)
		}
		m.modal = modalTag
		m.input.Show("Tag selected items (comma separated)", m.browser.KnownTags())
		return m, nil

	case key.Matches(msg, Keys.Untag):
		if len(m.page.Selection) == 0 {
			return m, m.setStatus("Nothing selected", true)
		}
		m.modal = modalUntag
		m.input.Show("Remove tag from selected items", m.browser.KnownTags())
		return m, nil

	case key.Matches(msg, Keys.Delete):
		if len(m.page.Selection) == 0 {
			return m, m.setStatus("Nothing selected", true)
		}
		m.prompt = m.browser.DeletePrompt()
		m.State = StateConfirmDelete
		return m, nil

	// Actions
	case key.Matches(msg, Keys.Filter):
		if m.isList {
			m.list.ToggleFilter()
		}
		return m, nil

	case key.Matches(msg, Keys.LoadMore):
		m.browser.LoadMore()
		return m, nil

	case key.Matches(msg, Keys.Refresh):
		m.browser.RefreshSessions()
		return m, m.setStatus("Refreshing...", false)

	case key.Matches(msg, Keys.Reconnect):
		m.browser.Reconnect()
		return m, m.setStatus("Reconnecting...", false)

	case key.Matches(msg, Keys.NewPermanode):
		m.browser.NewPermanode()
		return m, nil

	case key.Matches(msg, Keys.Upload):
		m.modal = modalUpload
		m.input.Show("Upload files (paths, comma separated)", nil)
		return m, nil

	case key.Matches(msg, Keys.OpenWeb):
		if m.opener == nil || m.page.URL == "" {
			return m, m.setStatus("No web UI for this store", true)
		}
		return m, OpenURLCmd(m.opener, m.page.URL)
	}

	// Number keys pick an aspect directly
	if s := msg.String(); len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
		if idx := int(s[0] - '1'); idx < len(m.page.Aspects) {
			m.browser.SelectAspect(idx)
		}
		return m, nil
	}

	// Everything else moves the cursor
	cmd := m.list.Update(msg)
	m.maybeLoadMore()
	return m, cmd
}

// inInput reports whether keys are currently typed into a text field
func (m Model) inInput() bool {
	return m.search.Focused() || m.input.IsVisible() || m.list.IsFilterTyping()
}

func (m *Model) cycleAspect(delta int) {
	n := len(m.page.Aspects)
	if n < 2 {
		return
	}
	m.browser.SelectAspect(((m.page.Active+delta)%n + n) % n)
}

func (m Model) updateSearch(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.Blur()
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.search.Value())
		m.search.Blur()
		if !m.browser.SubmitSearch(text) {
			return m, m.setStatus("Invalid search", true)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) updateInputModal(msg tea.KeyMsg) (Model, tea.Cmd) {
	var (
		cmd       tea.Cmd
		submitted bool
	)
	m.input, cmd, submitted = m.input.Update(msg)
	if !submitted {
		return m, cmd
	}

	value := m.input.Value()
	kind := m.modal
	m.input.Hide()
	m.modal = modalNone

	switch kind {
	case modalTag:
		if !m.browser.TagSelection(value) {
			return m, m.setStatus("No tags given", true)
		}
	case modalUntag:
		if !m.browser.UntagSelection(value) {
			return m, m.setStatus("No tag given", true)
		}
	case modalUpload:
		return m, m.upload(browser.PastedPaths(strings.ReplaceAll(value, ",", "\n")))
	}
	return m, nil
}

func (m *Model) upload(paths []string) tea.Cmd {
	if len(paths) == 0 {
		return nil
	}
	if err := m.browser.Upload(paths); err != nil {
		return func() tea.Msg { return ErrMsg{Err: err, Context: "upload"} }
	}
	return nil
}
