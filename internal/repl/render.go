package repl

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the REPL colors and pre-built styles.
type Theme struct {
	Primary lipgloss.Color
	Danger  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Muted   lipgloss.Color

	TitleStyle   lipgloss.Style
	PromptStyle  lipgloss.Style
	ErrorStyle   lipgloss.Style
	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	MutedStyle   lipgloss.Style
	ActionStyle  lipgloss.Style
}

// DarkTheme is the default theme.
func DarkTheme() Theme {
	t := Theme{
		Primary: lipgloss.Color("#7C3AED"),
		Danger:  lipgloss.Color("#EF4444"),
		Success: lipgloss.Color("#10B981"),
		Warning: lipgloss.Color("#F59E0B"),
		Muted:   lipgloss.Color("#6B7280"),
	}

	t.TitleStyle = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.PromptStyle = lipgloss.NewStyle().
		Foreground(t.Success)

	t.ErrorStyle = lipgloss.NewStyle().
		Foreground(t.Danger).
		Bold(true)

	t.SuccessStyle = lipgloss.NewStyle().
		Foreground(t.Success)

	t.WarningStyle = lipgloss.NewStyle().
		Foreground(t.Warning)

	t.MutedStyle = lipgloss.NewStyle().
		Foreground(t.Muted)

	t.ActionStyle = lipgloss.NewStyle().
		Foreground(t.Warning).
		Bold(true)

	return t
}

// RenderMarkdown renders assistant markdown for the terminal. On any renderer
// failure the raw text is returned unchanged.
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimRight(rendered, "\n")
}
