package tui

import (
	"salesdesk/internal/config"
	"salesdesk/pkg/types"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles of the progress view
type Styles struct {
	App     lipgloss.Style
	Title   lipgloss.Style
	Status  lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Muted   lipgloss.Style

	// Bar is the progress bar fill color
	Bar string
}

// NewStyles builds the styles for a named config theme
func NewStyles(themeName string) Styles {
	theme := config.GetTheme(themeName)
	color := func(key string) lipgloss.Color { return lipgloss.Color(theme[key]) }

	return Styles{
		App: lipgloss.NewStyle().
			Padding(0, 1),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(color("primary")).
			MarginBottom(1),
		Status:  lipgloss.NewStyle().Foreground(color("info")),
		Error:   lipgloss.NewStyle().Foreground(color("error")).Bold(true),
		Success: lipgloss.NewStyle().Foreground(color("success")).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(color("warning")),
		Info:    lipgloss.NewStyle().Foreground(color("info")),
		Muted:   lipgloss.NewStyle().Foreground(color("muted")),
		Bar:     theme["primary"],
	}
}

// statusMarks are the one character row prefixes
var statusMarks = map[types.TaskStatus]string{
	types.StatusPending:      "·",
	types.StatusProcessing:   "…",
	types.StatusSuccess:      "✓",
	types.StatusFailure:      "✗",
	types.StatusSkipped:      "-",
	types.StatusUnrecognized: "?",
	types.StatusCancelled:    "×",
}

func (s Styles) forStatus(status types.TaskStatus) lipgloss.Style {
	switch status {
	case types.StatusSuccess:
		return s.Success
	case types.StatusFailure:
		return s.Error
	case types.StatusSkipped, types.StatusUnrecognized, types.StatusCancelled:
		return s.Warning
	case types.StatusProcessing:
		return s.Info
	default:
		return s.Muted
	}
}

func mark(status types.TaskStatus) string {
	if m, ok := statusMarks[status]; ok {
		return m
	}
	return "?"
}
