//go:build !nogui

// Package gui is the fyne desktop front end. It only mirrors the state kept
// by the batch controller and forwards operator actions to it.
package gui

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"salesdesk/internal/batch"
	"salesdesk/internal/config"
	"salesdesk/internal/log"
	"salesdesk/internal/scan"
	"salesdesk/internal/watch"
	"salesdesk/pkg/types"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

const appID = "io.github.salesdesk"

// maxLogLines bounds the log pane
const maxLogLines = 5000

// App is the GUI application
type App struct {
	fyneApp    fyne.App
	mainWindow fyne.Window
	cfgPath    string
	ctrl       *batch.Controller

	ctx         context.Context
	cancel      context.CancelFunc
	loopStarted atomic.Bool

	watchMu sync.Mutex
	watcher *watch.Watcher

	logMu    sync.Mutex
	logLines []string

	// Widgets mirrored from controller state
	modeCheck      *modeCheck
	table          *widget.Table
	logList        *widget.List
	statusLabel    *widget.Label
	summaryLabel   *widget.Label
	inputDirLabel  *widget.Label
	outputDirLabel *widget.Label
	startButton    *widget.Button
	addFilesBtn    *widget.Button
	addDirBtn      *widget.Button
	removeBtn      *widget.Button
	selectAllBtn   *widget.Button
	invertBtn      *widget.Button
	inputDirBtn    *widget.Button
	outputDirBtn   *widget.Button
	outputToSource *widget.Check
	policySelect   *widget.Select
}

// NewApp creates the GUI application. The config is saved to cfgPath when
// the window closes.
func NewApp(cfg *config.Config, cfgPath string) *App {
	return newApp(app.NewWithID(appID), cfg, cfgPath)
}

func newApp(fyneApp fyne.App, cfg *config.Config, cfgPath string, opts ...batch.Option) *App {
	a := &App{
		fyneApp: fyneApp,
		cfgPath: cfgPath,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.mainWindow = fyneApp.NewWindow("Sales Desk")

	opts = append([]batch.Option{batch.WithConfirmer(&dialogConfirmer{parent: a.mainWindow})}, opts...)
	a.ctrl = batch.New(cfg, a, opts...)

	a.setupMainWindow()
	a.ctrl.Init()
	a.refreshPaths()
	return a
}

// GetMainWindow returns the main window instance
func (a *App) GetMainWindow() fyne.Window {
	return a.mainWindow
}

// Controller exposes the controller driving this window
func (a *App) Controller() *batch.Controller {
	return a.ctrl
}

// Run shows the window and blocks until it is closed
func (a *App) Run() {
	a.startEventLoop()
	a.mainWindow.ShowAndRun()
}

func (a *App) startEventLoop() {
	if !a.loopStarted.CompareAndSwap(false, true) {
		return
	}
	go func() {
		if err := a.ctrl.Run(a.ctx); err != nil && a.ctx.Err() == nil {
			log.LogWithError(err).Error("Controller event loop stopped")
		}
	}()
	a.rewatch()
}

func (a *App) setupMainWindow() {
	a.mainWindow.Resize(fyne.NewSize(960, 720))
	a.mainWindow.SetCloseIntercept(a.shutdown)
	a.mainWindow.SetOnDropped(func(_ fyne.Position, uris []fyne.URI) {
		a.handleDrop(uris)
	})

	a.modeCheck = newModeCheck("Scan an input directory", a.requestToggle)

	a.addFilesBtn = widget.NewButtonWithIcon("Add File", theme.ContentAddIcon(), a.pickFile)
	a.addDirBtn = widget.NewButtonWithIcon("Add Folder", theme.FolderNewIcon(), a.pickFolderToAdd)
	a.removeBtn = widget.NewButtonWithIcon("Remove", theme.DeleteIcon(), func() {
		_, err := a.ctrl.RemoveSelected()
		a.warnIf(err)
	})
	a.selectAllBtn = widget.NewButton("Select All", func() {
		_, err := a.ctrl.SelectAll()
		a.warnIf(err)
	})
	a.invertBtn = widget.NewButton("Invert", func() {
		a.warnIf(a.ctrl.InvertSelection())
	})

	a.inputDirLabel = widget.NewLabel("")
	a.inputDirLabel.Truncation = fyne.TextTruncateEllipsis
	a.inputDirBtn = widget.NewButtonWithIcon("Input Folder", theme.FolderOpenIcon(), a.pickInputDir)

	a.outputDirLabel = widget.NewLabel("")
	a.outputDirLabel.Truncation = fyne.TextTruncateEllipsis
	a.outputDirBtn = widget.NewButtonWithIcon("Output Folder", theme.FolderOpenIcon(), a.pickOutputDir)

	a.outputToSource = widget.NewCheck("Write results next to the source files", func(v bool) {
		a.ctrl.SetOutputToSource(v)
		a.refreshPaths()
	})
	a.outputToSource.Checked = a.ctrl.OutputToSource()

	a.policySelect = widget.NewSelect(types.ConflictPolicyNames(), func(s string) {
		p, err := types.ParseConflictPolicy(s)
		if err != nil {
			a.warnIf(err)
			return
		}
		a.ctrl.SetPolicy(p)
	})
	a.policySelect.Selected = a.ctrl.Policy().String()

	a.startButton = widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), func() {
		if err := a.ctrl.StartOrCancel(); err != nil {
			log.LogWithError(err).Debug("Start or cancel refused")
		}
	})
	a.startButton.Importance = widget.HighImportance

	a.table = a.newTaskTable()
	a.logList = widget.NewList(
		func() int {
			a.logMu.Lock()
			defer a.logMu.Unlock()
			return len(a.logLines)
		},
		func() fyne.CanvasObject {
			l := widget.NewLabel("")
			l.TextStyle.Monospace = true
			return l
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			a.logMu.Lock()
			defer a.logMu.Unlock()
			if id < 0 || id >= len(a.logLines) {
				return
			}
			obj.(*widget.Label).SetText(a.logLines[id])
		},
	)

	a.statusLabel = widget.NewLabel("Ready")
	a.summaryLabel = widget.NewLabel("")

	inputRow := container.NewBorder(nil, nil, a.inputDirBtn, nil, a.inputDirLabel)
	outputRow := container.NewBorder(nil, nil, a.outputDirBtn, nil, a.outputDirLabel)
	policyRow := container.NewHBox(widget.NewLabel("When the output exists:"), a.policySelect)

	top := container.NewVBox(
		a.modeCheck,
		inputRow,
		container.NewHBox(a.addFilesBtn, a.addDirBtn, a.removeBtn, layout.NewSpacer(), a.selectAllBtn, a.invertBtn),
	)
	bottom := container.NewVBox(
		outputRow,
		a.outputToSource,
		policyRow,
		container.NewHBox(a.statusLabel, layout.NewSpacer(), a.summaryLabel, a.startButton),
	)

	split := container.NewVSplit(a.table, a.logList)
	split.Offset = 0.6

	a.mainWindow.SetContent(container.NewBorder(top, bottom, nil, nil, split))
	a.setRunning(false)
}

func (a *App) requestToggle() {
	decision, err := a.ctrl.ToggleMode()
	if err != nil {
		a.warnIf(err)
		return
	}
	log.LogWithFields(log.F("decision", decision.String())).Debug("Mode toggle requested")
}

func (a *App) warnIf(err error) {
	if err != nil {
		a.Warn(err)
	}
}

// refreshPaths mirrors the configured directories
func (a *App) refreshPaths() {
	in := a.ctrl.InputDir()
	if in == "" {
		in = "No input folder selected"
	}
	a.inputDirLabel.SetText(in)

	out := a.ctrl.OutputDir()
	switch {
	case a.ctrl.OutputToSource():
		out = "Next to each source file"
	case out == "":
		out = "No output folder selected"
	}
	a.outputDirLabel.SetText(out)

	running := a.ctrl.Running()
	if a.ctrl.OutputToSource() || running {
		a.outputDirBtn.Disable()
	} else {
		a.outputDirBtn.Enable()
	}
}

// setRunning locks everything that would change the task list while the
// engine runs
func (a *App) setRunning(running bool) {
	manual := a.ctrl.Mode() == types.ModeManual
	toggle := func(w fyne.Disableable, enabled bool) {
		if enabled {
			w.Enable()
		} else {
			w.Disable()
		}
	}

	toggle(a.modeCheck, !running)
	toggle(a.addFilesBtn, !running && manual)
	toggle(a.addDirBtn, !running && manual)
	toggle(a.removeBtn, !running && manual)
	toggle(a.selectAllBtn, !running)
	toggle(a.invertBtn, !running)
	toggle(a.inputDirBtn, !running && !manual)
	toggle(a.outputToSource, !running)
	toggle(a.policySelect, !running)

	if running {
		a.startButton.SetText("Cancel")
		a.startButton.SetIcon(theme.MediaStopIcon())
		a.startButton.Importance = widget.DangerImportance
	} else {
		a.startButton.SetText("Start")
		a.startButton.SetIcon(theme.MediaPlayIcon())
		a.startButton.Importance = widget.HighImportance
	}
	a.startButton.Refresh()
	a.refreshPaths()
}

// rewatch follows the input directory while directory mode is active
func (a *App) rewatch() {
	a.stopWatcher()
	if !a.loopStarted.Load() || a.ctx.Err() != nil {
		return
	}

	cfg := a.ctrl.Settings()
	root := a.ctrl.InputDir()
	if !cfg.Watch.Enabled || root == "" || a.ctrl.Mode() != types.ModeDirectoryScan {
		return
	}

	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	w, err := watch.New(scan.New().Eligible, time.Duration(cfg.Watch.CoalesceMS)*time.Millisecond)
	if err != nil {
		log.LogWithError(err).Warn("Input folder will not refresh automatically")
		return
	}
	if err := w.AddTree(root); err != nil {
		log.LogWithError(err).Warn("Input folder will not refresh automatically")
		w.Stop()
		return
	}
	if err := w.Start(); err != nil {
		log.LogWithError(err).Warn("Input folder will not refresh automatically")
		w.Stop()
		return
	}
	a.watcher = w

	go w.Follow(a.ctx, func(change watch.Change) {
		if a.ctrl.Running() || a.ctrl.Mode() != types.ModeDirectoryScan {
			return
		}
		log.LogWithFields(log.F("paths", len(change.Paths))).Debug("Input folder changed")
		if err := a.ctrl.Rescan(); err != nil {
			log.LogWithError(err).Debug("Rescan after change skipped")
		}
	})
}

func (a *App) stopWatcher() {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
}

// shutdown cancels a running engine, saves the settings and closes the window
func (a *App) shutdown() {
	if a.ctrl.Running() {
		if err := a.ctrl.Cancel(); err != nil {
			log.LogWithError(err).Debug("Cancel on close")
		}
	}
	a.cancel()
	a.stopWatcher()
	a.saveConfig()
	a.mainWindow.Close()
}

// saveConfig saves the current configuration
func (a *App) saveConfig() {
	if a.cfgPath == "" {
		return
	}
	if err := config.SaveConfig(a.ctrl.Settings(), a.cfgPath); err != nil {
		log.LogWithError(err).Error("Failed to save settings")
		return
	}
	log.LogWithFields(log.F("path", a.cfgPath)).Debug("Settings saved")
}

// startLocation opens dialogs where the last pick happened
func (a *App) startLocation() fyne.ListableURI {
	dir := a.ctrl.LastSelectedPath()
	if dir == "" {
		return nil
	}
	lister, err := storage.ListerForURI(storage.NewFileURI(dir))
	if err != nil {
		return nil
	}
	return lister
}

func (a *App) pickFile() {
	dlg := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			a.Warn(err)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		_ = reader.Close()

		a.ctrl.SetLastSelectedPath(batch.DirOf(path))
		_, err = a.ctrl.AddFiles(path)
		a.warnIf(err)
	}, a.mainWindow)
	dlg.SetFilter(storage.NewExtensionFileFilter([]string{".csv", ".xlsx", ".CSV", ".XLSX"}))
	if loc := a.startLocation(); loc != nil {
		dlg.SetLocation(loc)
	}
	dlg.Show()
}

func (a *App) pickFolder(onPicked func(path string)) {
	dlg := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil {
			a.Warn(err)
			return
		}
		if uri == nil {
			return
		}
		onPicked(uri.Path())
	}, a.mainWindow)
	if loc := a.startLocation(); loc != nil {
		dlg.SetLocation(loc)
	}
	dlg.Show()
}

func (a *App) pickFolderToAdd() {
	a.pickFolder(func(path string) {
		a.ctrl.SetLastSelectedPath(path)
		_, err := a.ctrl.AddFiles(path)
		a.warnIf(err)
	})
}

func (a *App) pickInputDir() {
	a.pickFolder(a.setInputDir)
}

func (a *App) setInputDir(path string) {
	if err := a.ctrl.SetInputDir(path); err != nil {
		a.Warn(err)
		return
	}
	a.refreshPaths()
	a.rewatch()
}

func (a *App) pickOutputDir() {
	a.pickFolder(func(path string) {
		a.ctrl.SetOutputDir(path)
		a.refreshPaths()
	})
}

// handleDrop adds dropped files in manual mode; in directory mode a dropped
// folder becomes the input folder
func (a *App) handleDrop(uris []fyne.URI) {
	paths := make([]string, 0, len(uris))
	for _, u := range uris {
		if u.Scheme() == "file" {
			paths = append(paths, u.Path())
		}
	}
	if len(paths) == 0 {
		return
	}

	if a.ctrl.Mode() == types.ModeDirectoryScan {
		if len(paths) == 1 {
			if ok, err := storage.CanList(storage.NewFileURI(paths[0])); err == nil && ok {
				a.setInputDir(paths[0])
				return
			}
		}
		a.Warn(errNotAFolder)
		return
	}

	a.ctrl.SetLastSelectedPath(batch.DirOf(paths[0]))
	_, err := a.ctrl.AddFiles(paths...)
	a.warnIf(err)
}

// StartGUI opens the desktop application and blocks until its window closes
func StartGUI(cfg *config.Config, cfgPath string) error {
	NewApp(cfg, cfgPath).Run()
	return nil
}

// IsGUIAvailable returns whether the GUI is available in this build
func IsGUIAvailable() bool {
	return true
}
