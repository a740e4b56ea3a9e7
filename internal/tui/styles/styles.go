package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Accent     = lipgloss.Color("#E5A00D")
	SlateDark  = lipgloss.Color("#1F2937")
	SlateLight = lipgloss.Color("#374151")
	DimGray    = lipgloss.Color("#6B7280")
	LightGray  = lipgloss.Color("#9CA3AF")
	White      = lipgloss.Color("#F9FAFB")
	Green      = lipgloss.Color("#10B981")
	Red        = lipgloss.Color("#EF4444")
	Blue       = lipgloss.Color("#3B82F6")
)

// Themes maps config theme names to accent colors
var Themes = map[string]lipgloss.Color{
	"default": lipgloss.Color("#E5A00D"),
	"blue":    lipgloss.Color("#3B82F6"),
	"green":   lipgloss.Color("#10B981"),
}

// Text styles
var (
	TitleStyle     lipgloss.Style
	SubtitleStyle  lipgloss.Style
	DimStyle       lipgloss.Style
	AccentStyle    lipgloss.Style
	ErrorStyle     lipgloss.Style
	SuccessStyle   lipgloss.Style
	HighlightStyle lipgloss.Style
)

// List item styles
var (
	SelectedItemStyle lipgloss.Style
	NormalItemStyle   lipgloss.Style
	MarkedStyle       lipgloss.Style
)

// Aspect tabs
var (
	TabStyle       lipgloss.Style
	ActiveTabStyle lipgloss.Style
)

// Modal, help and filter styles
var (
	ModalStyle          lipgloss.Style
	ModalTitleStyle     lipgloss.Style
	HelpKeyStyle        lipgloss.Style
	HelpDescStyle       lipgloss.Style
	FilterPromptStyle   lipgloss.Style
	MatchHighlightStyle lipgloss.Style
)

func init() {
	build()
}

// SetTheme switches the accent color. Unknown names keep the default.
func SetTheme(name string) {
	if c, ok := Themes[strings.ToLower(name)]; ok {
		Accent = c
	} else {
		Accent = Themes["default"]
	}
	build()
}

func build() {
	TitleStyle = lipgloss.NewStyle().
		Foreground(White).
		Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
		Foreground(LightGray)

	DimStyle = lipgloss.NewStyle().
		Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
		Foreground(Accent)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(Red)

	SuccessStyle = lipgloss.NewStyle().
		Foreground(Green)

	HighlightStyle = lipgloss.NewStyle().
		Foreground(White).
		Background(Accent).
		Padding(0, 1)

	SelectedItemStyle = lipgloss.NewStyle().
		Foreground(White).
		Background(SlateLight)

	NormalItemStyle = lipgloss.NewStyle().
		Foreground(LightGray)

	MarkedStyle = lipgloss.NewStyle().
		Foreground(Accent).
		Bold(true)

	TabStyle = lipgloss.NewStyle().
		Foreground(LightGray).
		Padding(0, 1)

	ActiveTabStyle = lipgloss.NewStyle().
		Foreground(White).
		Background(Accent).
		Bold(true).
		Padding(0, 1)

	ModalStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Accent).
		Padding(1, 2).
		Background(SlateDark)

	ModalTitleStyle = lipgloss.NewStyle().
		Foreground(White).
		Bold(true).
		MarginBottom(1)

	HelpKeyStyle = lipgloss.NewStyle().
		Foreground(Accent)

	HelpDescStyle = lipgloss.NewStyle().
		Foreground(DimGray)

	FilterPromptStyle = lipgloss.NewStyle().
		Foreground(Accent).
		Bold(true)

	MatchHighlightStyle = lipgloss.NewStyle().
		Foreground(Accent).
		Bold(true)
}

// Helper functions

// Truncate truncates a string to the given display width with ellipsis
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if width <= 3 {
		return string(runes[:min(width, len(runes))])
	}
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// Pad pads a string to the given display width
func Pad(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return Truncate(s, width)
	}
	return s + strings.Repeat(" ", width-w)
}

// RenderProgressBar renders a progress bar
func RenderProgressBar(percent float64, width int) string {
	if width < 3 {
		return ""
	}

	filled := int(float64(width) * percent / 100)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	full := lipgloss.NewStyle().Foreground(Accent)
	empty := lipgloss.NewStyle().Foreground(DimGray)
	return full.Render(strings.Repeat("█", filled)) + empty.Render(strings.Repeat("░", width-filled))
}
