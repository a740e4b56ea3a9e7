package components

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/blobnav/internal/browser"
	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/tui/styles"
)

const describeTimeout = 10 * time.Second

// DebugPanel is the diagnostics console. It lists the selected blobs and
// shows their descriptors as the store returns them.
type DebugPanel struct {
	poster loop.Poster

	visible bool
	refs    []domain.Ref
	lines   map[domain.Ref]string
	offset  int
	width   int
	height  int
}

// NewDebugPanel creates a hidden panel. Describe results are posted back
// through poster.
func NewDebugPanel(poster loop.Poster) *DebugPanel {
	return &DebugPanel{poster: poster}
}

var _ browser.Diagnostics = (*DebugPanel)(nil)

// Open implements browser.Diagnostics.
func (p *DebugPanel) Open(client browser.DebugClient) {
	p.visible = true
	p.offset = 0
	p.refs = client.Selected
	p.lines = make(map[domain.Ref]string, len(client.Selected))

	for _, ref := range client.Selected {
		p.lines[ref] = "describing..."
		go func(ref domain.Ref) {
			ctx, cancel := context.WithTimeout(context.Background(), describeTimeout)
			defer cancel()

			text := describeText(client.Store.Describe(ctx, ref))
			p.poster.Post(func() {
				if p.lines != nil {
					p.lines[ref] = text
				}
			})
		}(ref)
	}
}

func describeText(d *domain.Descriptor, err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "error: " + err.Error()
	}
	return string(out)
}

// Close hides the panel
func (p *DebugPanel) Close() {
	p.visible = false
	p.lines = nil
}

// IsVisible returns whether the panel is shown
func (p *DebugPanel) IsVisible() bool { return p.visible }

// SetSize sets the panel dimensions
func (p *DebugPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// Update scrolls the panel
func (p *DebugPanel) Update(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch {
	case key.Matches(keyMsg, DebugPanelKeys.Close):
		p.Close()
	case key.Matches(keyMsg, DebugPanelKeys.Down):
		p.offset++
	case key.Matches(keyMsg, DebugPanelKeys.Up):
		if p.offset > 0 {
			p.offset--
		}
	}
	return nil
}

// View renders the panel
func (p *DebugPanel) View() string {
	if !p.visible {
		return ""
	}

	var lines []string
	if len(p.refs) == 0 {
		lines = append(lines, styles.DimStyle.Render("nothing selected"))
	}
	for _, ref := range p.refs {
		lines = append(lines, styles.AccentStyle.Render(string(ref)))
		lines = append(lines, strings.Split(p.lines[ref], "\n")...)
		lines = append(lines, "")
	}

	visible := max(p.height-6, 1)
	if p.offset > len(lines)-1 {
		p.offset = max(len(lines)-1, 0)
	}
	end := min(p.offset+visible, len(lines))

	width := max(p.width-8, 20)
	var b strings.Builder
	b.WriteString(styles.ModalTitleStyle.Render(fmt.Sprintf("Diagnostics (%d selected)", len(p.refs))))
	b.WriteByte('\n')
	for _, line := range lines[p.offset:end] {
		b.WriteString(styles.Truncate(line, width))
		b.WriteByte('\n')
	}
	b.WriteString(styles.DimStyle.Render("j/k scroll • esc close"))
	return styles.ModalStyle.Render(b.String())
}
