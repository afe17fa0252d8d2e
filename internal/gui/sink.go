//go:build !nogui

package gui

import (
	"fmt"

	"salesdesk/internal/batch"
	"salesdesk/internal/errors"
	"salesdesk/internal/log"
	"salesdesk/pkg/types"

	"fyne.io/fyne/v2/dialog"
)

var errNotAFolder = errors.NewRunError("drop a single folder to scan it", errors.InvalidOperation, nil)

// The App is the controller's sink. fyne widgets may be updated from any
// goroutine, so events are applied where they arrive.

func (a *App) AppendLog(line string) {
	a.logMu.Lock()
	a.logLines = append(a.logLines, line)
	if over := len(a.logLines) - maxLogLines; over > 0 {
		a.logLines = append(a.logLines[:0], a.logLines[over:]...)
	}
	a.logMu.Unlock()

	a.logList.Refresh()
	a.logList.ScrollToBottom()
}

func (a *App) TasksChanged() {
	a.table.Refresh()
	a.summaryLabel.SetText(summarize(a.ctrl.TaskList().Counts(), a.ctrl.TaskList().Len()))
}

func (a *App) ModeChanged(mode types.InputMode) {
	a.modeCheck.setMode(mode)
	a.setRunning(a.ctrl.Running())
	if a.ctx.Err() == nil && a.loopStarted.Load() {
		go a.rewatch()
	}
}

func (a *App) RunStateChanged(running bool) {
	a.setRunning(running)
	if running {
		a.statusLabel.SetText("Processing...")
	}
}

func (a *App) RunFinished(r batch.Report) {
	a.statusLabel.SetText(r.Message())
	if r.Kind == batch.ReportFailedToStart {
		dialog.ShowInformation("Engine failed to start", r.Remediation(), a.mainWindow)
	}
}

func (a *App) Warn(err error) {
	log.LogWithError(err).Warn("Action refused")
	a.statusLabel.SetText(err.Error())
	dialog.ShowError(err, a.mainWindow)
}

// summarize renders e.g. "4 files (Pending: 3, Done: 1)"
func summarize(counts map[types.TaskStatus]int, total int) string {
	if total == 0 {
		return "No files"
	}
	s := fmt.Sprintf("%d files", total)
	if detail := (batch.Report{Counts: counts}).Summary(); detail != "" {
		s += " (" + detail + ")"
	}
	return s
}
