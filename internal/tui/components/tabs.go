package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/blobnav/internal/browser"
	"github.com/mmcdole/blobnav/internal/tui/styles"
)

// RenderTabs draws the aspect chooser. It returns an empty string when the
// page has nothing to choose between.
func RenderTabs(st browser.RenderState, width int) string {
	if !st.ShowChooser {
		return ""
	}
	parts := make([]string, 0, len(st.Aspects))
	for i, a := range st.Aspects {
		if st.HasActive && i == st.Active {
			parts = append(parts, styles.ActiveTabStyle.Render(a.Title))
		} else {
			parts = append(parts, styles.TabStyle.Render(a.Title))
		}
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	if lipgloss.Width(row) > width {
		// Fall back to plain titles when the styled row does not fit
		titles := make([]string, len(st.Aspects))
		for i, a := range st.Aspects {
			titles[i] = a.Title
		}
		return styles.Truncate(strings.Join(titles, " | "), width)
	}
	return row
}
