package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/blobnav/internal/aspect"
	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/tui/styles"
)

// Scroll indicators ("↑ more" and "↓ more") each take 1 line
const ScrollIndicatorLines = 2

// ResultList is a scrollable, filterable list of search results. The items
// are replaced wholesale on every push from the session; the cursor stays
// on the same blob when it is still present.
type ResultList struct {
	items []aspect.Item

	// Selection
	cursor     int
	offset     int
	maxVisible int

	// Dimensions
	width  int
	height int

	// Status line shown instead of items (loading, error, empty)
	status string

	// Marked reports whether a row is in the selection
	Marked func(domain.Ref) bool

	// Filter state
	filterActive bool
	filterInput  textinput.Model
	filteredIdx  []int // indices into items
}

// NewResultList creates an empty list
func NewResultList() *ResultList {
	ti := textinput.New()
	ti.Placeholder = "type to filter..."
	ti.Prompt = "filter: "
	ti.PromptStyle = styles.FilterPromptStyle
	ti.TextStyle = styles.AccentStyle

	return &ResultList{filterInput: ti}
}

// SetItems replaces the items, keeping the cursor on the same ref if possible.
func (l *ResultList) SetItems(items []aspect.Item) {
	var current domain.Ref
	if it, ok := l.Selected(); ok {
		current = it.Ref
	}

	l.items = items
	if l.filterActive {
		l.applyFilter()
	}

	l.cursor = 0
	if current.Valid() {
		for i := 0; i < l.ItemCount(); i++ {
			if l.items[l.mapIndex(i)].Ref == current {
				l.cursor = i
				break
			}
		}
	}
	l.ensureVisible()
}

// SetStatus sets the line shown when there are no items to draw
func (l *ResultList) SetStatus(status string) {
	l.status = status
}

// SetSize sets the list's outer dimensions
func (l *ResultList) SetSize(width, height int) {
	l.width = width
	l.height = height
	l.recalcMaxVisible()
	l.ensureVisible()
}

// Selected returns the item under the cursor
func (l *ResultList) Selected() (aspect.Item, bool) {
	if l.cursor < 0 || l.cursor >= l.ItemCount() {
		return aspect.Item{}, false
	}
	return l.items[l.mapIndex(l.cursor)], true
}

// Cursor returns the cursor position within the visible (filtered) items
func (l *ResultList) Cursor() int { return l.cursor }

// ItemCount returns the number of visible items
func (l *ResultList) ItemCount() int {
	if l.filteredIdx != nil {
		return len(l.filteredIdx)
	}
	return len(l.items)
}

// AtEnd reports whether the cursor is on the last visible item
func (l *ResultList) AtEnd() bool {
	return l.ItemCount() > 0 && l.cursor == l.ItemCount()-1
}

// ToggleFilter activates the filter input
func (l *ResultList) ToggleFilter() {
	l.filterActive = true
	l.filterInput.Focus()
	l.recalcMaxVisible()
}

// IsFiltering returns true if filter mode is active
func (l *ResultList) IsFiltering() bool { return l.filterActive }

// IsFilterTyping returns true if filter is active AND input is focused
func (l *ResultList) IsFilterTyping() bool {
	return l.filterActive && l.filterInput.Focused()
}

// ClearFilter deactivates the filter and shows all items
func (l *ResultList) ClearFilter() {
	l.filterActive = false
	l.filteredIdx = nil
	l.filterInput.SetValue("")
	l.filterInput.Blur()
	l.recalcMaxVisible()
}

// Update handles cursor movement and filter typing
func (l *ResultList) Update(msg tea.Msg) tea.Cmd {
	keyMsg, isKey := msg.(tea.KeyMsg)

	if l.IsFilterTyping() {
		if isKey {
			switch {
			case key.Matches(keyMsg, ResultListKeys.Escape):
				l.ClearFilter()
				return nil
			case key.Matches(keyMsg, ResultListKeys.Enter):
				// Accept filter, blur input to allow navigation
				l.filterInput.Blur()
				return nil
			case keyMsg.Type == tea.KeyBackspace && l.filterInput.Value() == "":
				l.ClearFilter()
				return nil
			}
		}
		var cmd tea.Cmd
		l.filterInput, cmd = l.filterInput.Update(msg)
		l.applyFilter()
		l.cursor, l.offset = 0, 0
		return cmd
	}

	if !isKey {
		return nil
	}
	count := l.ItemCount()
	if count == 0 {
		return nil
	}

	half := max(l.maxVisible/2, 1)
	switch {
	case key.Matches(keyMsg, ResultListKeys.Down):
		if l.cursor < count-1 {
			l.cursor++
		}
	case key.Matches(keyMsg, ResultListKeys.Up):
		if l.cursor > 0 {
			l.cursor--
		}
	case key.Matches(keyMsg, ResultListKeys.Home):
		l.cursor = 0
	case key.Matches(keyMsg, ResultListKeys.End):
		l.cursor = count - 1
	case key.Matches(keyMsg, ResultListKeys.HalfDown):
		l.cursor = min(l.cursor+half, count-1)
	case key.Matches(keyMsg, ResultListKeys.HalfUp):
		l.cursor = max(l.cursor-half, 0)
	case key.Matches(keyMsg, ResultListKeys.PageDown):
		l.cursor = min(l.cursor+l.maxVisible, count-1)
	case key.Matches(keyMsg, ResultListKeys.PageUp):
		l.cursor = max(l.cursor-l.maxVisible, 0)
	}
	l.ensureVisible()
	return nil
}

func (l *ResultList) applyFilter() {
	query := l.filterInput.Value()
	if query == "" {
		l.filteredIdx = nil
		return
	}

	// Case-insensitive matching on title and type
	targets := make([]string, len(l.items))
	for i, it := range l.items {
		targets[i] = strings.ToLower(it.Title + " " + it.Type)
	}
	matches := fuzzy.Find(strings.ToLower(query), targets)

	l.filteredIdx = make([]int, len(matches))
	for i, match := range matches {
		l.filteredIdx[i] = match.Index
	}
}

func (l *ResultList) mapIndex(i int) int {
	if l.filteredIdx != nil && i < len(l.filteredIdx) {
		return l.filteredIdx[i]
	}
	return i
}

func (l *ResultList) recalcMaxVisible() {
	l.maxVisible = l.height - ScrollIndicatorLines
	if l.filterActive {
		l.maxVisible--
	}
	if l.maxVisible < 1 {
		l.maxVisible = 1
	}
}

func (l *ResultList) ensureVisible() {
	if l.maxVisible <= 0 {
		return
	}
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+l.maxVisible {
		l.offset = l.cursor - l.maxVisible + 1
	}
}

// View renders the list
func (l *ResultList) View() string {
	var b strings.Builder

	if l.filterActive {
		b.WriteString(l.filterInput.View())
		b.WriteByte('\n')
	}

	count := l.ItemCount()
	if count == 0 {
		status := l.status
		if status == "" {
			status = "no results"
			if l.filterActive {
				status = "no matches"
			}
		}
		b.WriteString(styles.DimStyle.Render(status))
		return b.String()
	}

	if l.offset > 0 {
		b.WriteString(styles.DimStyle.Render("↑ more"))
	}
	b.WriteByte('\n')

	end := min(l.offset+l.maxVisible, count)
	typeWidth := 12
	titleWidth := max(l.width-typeWidth-4, 8)
	for i := l.offset; i < end; i++ {
		it := l.items[l.mapIndex(i)]
		mark := " "
		if l.Marked != nil && l.Marked(it.Ref) {
			mark = styles.MarkedStyle.Render("*")
		}
		row := fmt.Sprintf("%s %s", styles.Pad(it.Type, typeWidth), styles.Truncate(it.Title, titleWidth))
		style := styles.NormalItemStyle
		if i == l.cursor {
			style = styles.SelectedItemStyle
		}
		b.WriteString(mark + " " + style.Render(styles.Pad(row, max(l.width-2, 1))))
		b.WriteByte('\n')
	}

	if end < count {
		b.WriteString(styles.DimStyle.Render("↓ more"))
	}
	return b.String()
}
