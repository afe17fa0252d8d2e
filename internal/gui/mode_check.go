//go:build !nogui

package gui

import (
	"salesdesk/pkg/types"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
)

// modeCheck looks like a check box but never changes its own state. A tap or
// space press only asks for a mode switch; the box follows the mode the
// controller reports back.
type modeCheck struct {
	widget.Check
	onRequest func()
}

func newModeCheck(label string, onRequest func()) *modeCheck {
	c := &modeCheck{onRequest: onRequest}
	c.Text = label
	c.ExtendBaseWidget(c)
	return c
}

// Tapped requests a switch instead of toggling
func (c *modeCheck) Tapped(*fyne.PointEvent) {
	if c.Disabled() || c.onRequest == nil {
		return
	}
	c.onRequest()
}

// TypedRune handles the keyboard equivalent of Tapped
func (c *modeCheck) TypedRune(r rune) {
	if r == ' ' {
		c.Tapped(nil)
	}
}

func (c *modeCheck) setMode(mode types.InputMode) {
	c.Checked = mode == types.ModeDirectoryScan
	c.Refresh()
}
