package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/blobnav/internal/aspect"
	"github.com/mmcdole/blobnav/internal/browser"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/tui/components"
	"github.com/mmcdole/blobnav/internal/tui/styles"
)

// ApplicationState represents the current state of the application
type ApplicationState int

const (
	StateBrowsing ApplicationState = iota
	StateHelp
	StateConfirmDelete
)

// modalKind tells what the input modal is collecting
type modalKind int

const (
	modalNone modalKind = iota
	modalTag
	modalUntag
	modalUpload
)

const statusTimeout = 4 * time.Second

// Model is the main Bubble Tea model for the application. Update runs on the
// browser's event loop: queued callbacks are delivered as messages, so every
// browser call happens on the bubbletea goroutine.
type Model struct {
	// Application state
	State ApplicationState
	Ready bool

	// Services
	browser *browser.Browser
	queue   *loop.Queue
	opener  Opener
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	// UI Components
	list   *components.ResultList
	search textinput.Model
	input  components.InputModal
	modal  modalKind
	debug  *components.DebugPanel

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg   string
	StatusIsErr bool

	page     browser.RenderState
	body     string // rendered content of a non-listing aspect
	isList   bool
	loadedAt int    // item count when the last page was requested
	prompt   string // delete confirmation text
}

// NewModel creates the model. The browser must post to q; opener may be nil
// when there is no web UI to open.
func NewModel(b *browser.Browser, q *loop.Queue, opener Opener, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	search := textinput.New()
	search.Prompt = "search: "
	search.Placeholder = "tag:foo, is:image, ref:sha224-..."
	search.PromptStyle = styles.FilterPromptStyle
	search.PlaceholderStyle = styles.DimStyle

	m := Model{
		State:   StateBrowsing,
		browser: b,
		queue:   q,
		opener:  opener,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		list:    components.NewResultList(),
		search:  search,
		input:   components.NewInputModal(),
		debug:   components.NewDebugPanel(q),
	}
	m.list.Marked = b.Selected
	b.SetDiagnostics(m.debug)
	m.sync()
	return m
}

// Init starts draining the event queue
func (m Model) Init() tea.Cmd {
	return WaitLoopCmd(m.ctx, m.queue)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.debug.SetSize(msg.Width, msg.Height)

	case loopMsg:
		msg.fn()
		m.queue.RunPending()
		cmds = append(cmds, WaitLoopCmd(m.ctx, m.queue))

	case ClearStatusMsg:
		m.StatusMsg = ""
		m.StatusIsErr = false

	case ErrMsg:
		m.logger.Error("tui error", "context", msg.Context, "error", msg.Err)
		m.StatusMsg = msg.Error()
		m.StatusIsErr = true
		cmds = append(cmds, ClearStatusCmd(statusTimeout))

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKeyMsg(msg)
		cmds = append(cmds, cmd)
	}

	m.sync()
	return m, tea.Batch(cmds...)
}

// sync pulls the page state out of the browser
func (m *Model) sync() {
	m.page = m.browser.Snapshot()

	size := aspect.Size{Width: m.Width, Height: m.bodyHeight()}
	content := m.browser.Content(size)
	results, ok := content.(*aspect.Results)
	m.isList = ok
	m.body = ""

	switch {
	case ok:
		m.list.SetSize(size.Width, size.Height)
		m.list.SetItems(results.Items())
		switch {
		case results.Session.HasTransportError():
			m.list.SetStatus("connection error (ctrl+r to reconnect)")
		case !results.Session.Loaded():
			m.list.SetStatus("loading...")
		default:
			m.list.SetStatus("")
		}
	case content != nil:
		m.body = content.View()
	}
}

// bodyHeight is the height left for the active aspect
func (m Model) bodyHeight() int {
	chrome := 3 // header, search bar, footer
	if m.page.ShowChooser {
		chrome++
	}
	if len(m.page.Selection) > 0 {
		chrome++
	}
	chrome += len(m.page.Errors)
	return max(m.Height-chrome, 1)
}

// setStatus shows a transient message in the footer
func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.StatusMsg = text
	m.StatusIsErr = isErr
	return ClearStatusCmd(statusTimeout)
}

// maybeLoadMore requests the next page once the cursor reaches the end of
// the listing.
func (m *Model) maybeLoadMore() {
	if !m.isList || m.list.IsFiltering() || !m.list.AtEnd() {
		return
	}
	if n := m.list.ItemCount(); n != m.loadedAt {
		m.loadedAt = n
		m.browser.LoadMore()
	}
}

// View renders the application
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	switch m.State {
	case StateHelp:
		return m.renderHelp()
	case StateConfirmDelete:
		return m.renderDeleteConfirmation()
	}

	rows := []string{m.renderHeader()}
	if tabs := components.RenderTabs(m.page, m.Width); tabs != "" {
		rows = append(rows, tabs)
	}
	rows = append(rows, m.renderSearchBar())

	body := m.body
	if m.isList {
		body = m.list.View()
	}
	rows = append(rows, lipgloss.NewStyle().Height(m.bodyHeight()).MaxHeight(m.bodyHeight()).Render(body))

	if controls := m.renderControls(); controls != "" {
		rows = append(rows, controls)
	}
	for _, e := range m.page.Errors {
		rows = append(rows, styles.ErrorStyle.Render(styles.Truncate("! "+e.Error, m.Width)))
	}
	rows = append(rows, m.renderFooter())

	view := lipgloss.JoinVertical(lipgloss.Left, rows...)

	if m.debug.IsVisible() {
		view = lipgloss.Place(m.Width, m.Height,
			lipgloss.Center, lipgloss.Center,
			m.debug.View())
	}

	// Overlay input modal if visible
	if m.input.IsVisible() {
		view = lipgloss.Place(m.Width, m.Height,
			lipgloss.Center, lipgloss.Center,
			m.input.View())
	}

	return view
}

func (m Model) renderHeader() string {
	left := styles.TitleStyle.Render("blobnav")
	var nav string
	if m.page.CanBack {
		nav += "←"
	}
	if m.page.CanForward {
		nav += "→"
	}
	right := ""
	if m.page.Status != nil && m.page.Status.Version != "" {
		right = styles.DimStyle.Render("server " + m.page.Status.Version)
	}
	used := lipgloss.Width(left) + lipgloss.Width(right) + lipgloss.Width(nav) + 3
	url := styles.SubtitleStyle.Render(styles.Truncate(m.page.URL, max(m.Width-used, 0)))

	line := left + " " + styles.AccentStyle.Render(nav) + " " + url
	if gap := m.Width - lipgloss.Width(line) - lipgloss.Width(right); gap > 0 {
		line += strings.Repeat(" ", gap) + right
	}
	return line
}

func (m Model) renderSearchBar() string {
	if m.search.Focused() {
		return m.search.View()
	}
	current := m.page.CurrentSearch
	if current == "" {
		return styles.DimStyle.Render("search: (/ to search)")
	}
	text := "search: " + current
	if m.page.CurrentSet.Valid() {
		text += "  set: " + string(m.page.CurrentSet)
	}
	return styles.SubtitleStyle.Render(styles.Truncate(text, m.Width))
}

// controlKeys maps selection actions to the keys that trigger them
var controlKeys = map[browser.Action]string{
	browser.ActionClearSelection: "c",
	browser.ActionCreateSet:      "n",
	browser.ActionSelectAsSet:    "s",
	browser.ActionAddToSet:       "a",
	browser.ActionDelete:         "x",
	browser.ActionTag:            "t",
}

func (m Model) renderControls() string {
	if len(m.page.Controls) == 0 {
		return ""
	}
	parts := []string{styles.MarkedStyle.Render(fmt.Sprintf("%d selected", len(m.page.Selection)))}
	for _, c := range m.page.Controls {
		parts = append(parts, styles.HelpKeyStyle.Render(controlKeys[c.Action])+" "+styles.HelpDescStyle.Render(c.Label))
	}
	return styles.Truncate(strings.Join(parts, "  "), m.Width)
}

// renderFooter renders a single-line minimal footer
func (m Model) renderFooter() string {
	var left string
	switch {
	case m.page.UploadText != "":
		left = styles.AccentStyle.Render(m.page.UploadText)
	case m.StatusMsg != "" && m.StatusIsErr:
		left = styles.ErrorStyle.Render(m.StatusMsg)
	case m.StatusMsg != "":
		left = styles.SuccessStyle.Render(m.StatusMsg)
	case m.page.Notice != "":
		left = styles.SuccessStyle.Render(m.page.Notice)
	}

	help := styles.HelpKeyStyle.Render("?") + " " + styles.HelpDescStyle.Render("help") + "  " +
		styles.HelpKeyStyle.Render("q") + " " + styles.HelpDescStyle.Render("quit")

	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(help)
	if gap < 1 {
		return styles.Truncate(left, m.Width)
	}
	return left + strings.Repeat(" ", gap) + help
}

// renderHelp renders the help screen
func (m Model) renderHelp() string {
	help := `
NAVIGATION                      SELECTION
  j/k        Up/down               space  Select item
  enter/l    Open                  c      Clear selection
  h/←        Back                  n      Create set
  L          Forward               a      Add to current set
  H          Home                  s      Select as current set
  R          Search roots          t/T    Tag / untag
  tab        Next view             x      Delete
  g/G        First/last item

SEARCH                          OTHER
  /          Search                u      Upload files
  f          Filter results        N      New permanode
  m          Load more             o      Open in web UI
  r          Refresh               |      Diagnostics
  C-r        Reconnect             q      Quit

Paste file paths to upload them.
Press any key to return...
`

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(help))
}

// renderDeleteConfirmation renders the delete confirmation modal
func (m Model) renderDeleteConfirmation() string {
	modal := fmt.Sprintf("\n  %s\n\n        [Y] Yes      [N] No\n", m.prompt)

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(modal))
}
