//go:build !nogui

package gui

import (
	"salesdesk/internal/modeswitch"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

const modeChangeQuestion = "Switching the input mode clears the current task list.\nDo you want to continue?"

// dialogConfirmer asks before a mode switch clears the list
type dialogConfirmer struct {
	parent fyne.Window
}

func (d *dialogConfirmer) ConfirmModeChange(answer func(modeswitch.Answer)) {
	dontAsk := widget.NewCheck("Don't ask again", nil)
	content := container.NewVBox(widget.NewLabel(modeChangeQuestion), dontAsk)

	dlg := dialog.NewCustomConfirm("Switch input mode", "Switch", "Cancel", content, func(ok bool) {
		answer(modeswitch.Answer{Accept: ok, DontAskAgain: dontAsk.Checked})
	}, d.parent)
	dlg.Show()
}
