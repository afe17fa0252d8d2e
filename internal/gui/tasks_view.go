//go:build !nogui

package gui

import (
	"salesdesk/pkg/types"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
)

const (
	colSelected = iota
	colName
	colStatus
	colMessage
	columnCount
)

var columnTitles = [columnCount]string{"", "File", "Status", "Message"}

// newTaskTable shows one row per task. Tapping a row flips its selection.
func (a *App) newTaskTable() *widget.Table {
	table := widget.NewTable(
		func() (int, int) {
			return a.ctrl.TaskList().Len(), columnCount
		},
		func() fyne.CanvasObject {
			l := widget.NewLabel("")
			l.Truncation = fyne.TextTruncateEllipsis
			return l
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			label := obj.(*widget.Label)
			task, ok := a.ctrl.TaskList().At(id.Row)
			if !ok {
				label.SetText("")
				return
			}
			label.Importance = widget.MediumImportance
			switch id.Col {
			case colSelected:
				if task.Selected {
					label.SetText("[x]")
				} else {
					label.SetText("[ ]")
				}
			case colName:
				label.SetText(task.Name())
			case colStatus:
				label.Importance = statusImportance(task.Status)
				label.SetText(task.Status.Label())
			case colMessage:
				label.SetText(task.Message)
			}
		},
	)

	table.ShowHeaderRow = true
	table.CreateHeader = func() fyne.CanvasObject {
		l := widget.NewLabel("")
		l.TextStyle.Bold = true
		return l
	}
	table.UpdateHeader = func(id widget.TableCellID, obj fyne.CanvasObject) {
		if id.Col >= 0 && id.Col < columnCount {
			obj.(*widget.Label).SetText(columnTitles[id.Col])
		}
	}

	table.SetColumnWidth(colSelected, 48)
	table.SetColumnWidth(colName, 320)
	table.SetColumnWidth(colStatus, 140)
	table.SetColumnWidth(colMessage, 360)

	table.OnSelected = func(id widget.TableCellID) {
		table.Unselect(id)
		a.toggleRow(id.Row)
	}
	return table
}

func (a *App) toggleRow(row int) {
	task, ok := a.ctrl.TaskList().At(row)
	if !ok {
		return
	}
	a.warnIf(a.ctrl.SetSelected(task.Path, !task.Selected))
}

func statusImportance(s types.TaskStatus) widget.Importance {
	switch s {
	case types.StatusSuccess:
		return widget.SuccessImportance
	case types.StatusFailure:
		return widget.DangerImportance
	case types.StatusSkipped, types.StatusUnrecognized, types.StatusCancelled:
		return widget.WarningImportance
	case types.StatusProcessing:
		return widget.HighImportance
	default:
		return widget.MediumImportance
	}
}
