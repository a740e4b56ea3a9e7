package components

import (
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mmcdole/blobnav/internal/tui/styles"
)

const maxSuggestions = 5

// InputModal is a simple text input modal. When given candidates it offers
// completions for the last comma separated token.
type InputModal struct {
	visible    bool
	title      string
	input      textinput.Model
	candidates []string
}

// NewInputModal creates a new input modal
func NewInputModal() InputModal {
	ti := textinput.New()
	ti.Placeholder = "Enter tags..."
	ti.CharLimit = 200
	ti.Width = 40
	ti.Prompt = ""
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.White)
	ti.PlaceholderStyle = styles.DimStyle

	return InputModal{
		input: ti,
	}
}

// Show displays the modal with a title and optional completion candidates
func (m *InputModal) Show(title string, candidates []string) {
	m.visible = true
	m.title = title
	m.candidates = candidates
	m.input.SetValue("")
	m.input.Focus()
}

// Hide dismisses the modal
func (m *InputModal) Hide() {
	m.visible = false
	m.input.Blur()
}

// IsVisible returns whether the modal is shown
func (m InputModal) IsVisible() bool {
	return m.visible
}

// Value returns the current input value
func (m InputModal) Value() string {
	return m.input.Value()
}

// Suggestions returns the candidates matching the token being typed, best
// match first.
func (m InputModal) Suggestions() []string {
	token := strings.TrimSpace(lastToken(m.input.Value()))
	if token == "" || len(m.candidates) == 0 {
		return nil
	}
	ranks := fuzzy.RankFindFold(token, m.candidates)
	sort.Sort(ranks)

	var out []string
	for _, r := range ranks {
		if strings.EqualFold(r.Target, token) {
			continue
		}
		out = append(out, r.Target)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// Update handles input events, returns (modal, cmd, submitted)
func (m InputModal) Update(msg tea.Msg) (InputModal, tea.Cmd, bool) {
	if !m.visible {
		return m, nil, false
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			return m, nil, true
		case "esc":
			m.Hide()
			return m, nil, false
		case "tab":
			if s := m.Suggestions(); len(s) > 0 {
				m.input.SetValue(complete(m.input.Value(), s[0]))
				m.input.CursorEnd()
			}
			return m, nil, false
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd, false
}

func lastToken(s string) string {
	if i := strings.LastIndex(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}

// complete replaces the last token of s with word.
func complete(s, word string) string {
	if i := strings.LastIndex(s, ","); i >= 0 {
		return s[:i+1] + " " + word
	}
	return word
}

// View renders the input modal
func (m InputModal) View() string {
	if !m.visible {
		return ""
	}

	const modalWidth = 44

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.White).
		Bold(true).
		Width(modalWidth).
		Background(styles.SlateDark)

	inputStyle := lipgloss.NewStyle().
		Width(modalWidth).
		Background(styles.SlateDark)

	spacer := lipgloss.NewStyle().
		Width(modalWidth).
		Background(styles.SlateDark).
		Render("")

	rows := []string{
		titleStyle.Render(m.title),
		spacer,
		inputStyle.Render(m.input.View()),
	}
	if s := m.Suggestions(); len(s) > 0 {
		rows = append(rows, spacer)
		for i, word := range s {
			style := styles.DimStyle
			if i == 0 {
				style = styles.AccentStyle
			}
			rows = append(rows, inputStyle.Render(style.Render(word)))
		}
	}

	return styles.ModalStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
