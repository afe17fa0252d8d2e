package main

import (
	"salesdesk/internal/config"

	"github.com/charmbracelet/lipgloss"
)

// palette renders CLI messages in the configured theme
type palette struct {
	primary lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newPalette(cfg *config.Config) palette {
	theme := config.GetTheme(cfg.Theme.Name)
	fg := func(key string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(theme[key]))
	}
	return palette{
		primary: fg("primary").Bold(true),
		success: fg("success"),
		warning: fg("warning"),
		failure: fg("error").Bold(true),
		muted:   fg("muted"),
	}
}

func (p palette) primaryText(s string) string { return p.primary.Render(s) }
func (p palette) successText(s string) string { return p.success.Render(s) }
func (p palette) warningText(s string) string { return p.warning.Render(s) }
func (p palette) errorText(s string) string   { return p.failure.Render(s) }
func (p palette) mutedText(s string) string   { return p.muted.Render(s) }
