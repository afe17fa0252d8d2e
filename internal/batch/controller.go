// Package batch ties the task list, the mode switch, the scanner and the
// engine orchestrator together behind the operations a front end offers.
package batch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"salesdesk/internal/config"
	"salesdesk/internal/errors"
	"salesdesk/internal/log"
	"salesdesk/internal/modeswitch"
	"salesdesk/internal/orchestrator"
	"salesdesk/internal/protocol"
	"salesdesk/internal/scan"
	"salesdesk/internal/tasklist"
	"salesdesk/pkg/types"
)

// Option configures a Controller
type Option func(*Controller)

// WithConfirmer sets who is asked before a mode switch clears the list
func WithConfirmer(c modeswitch.Confirmer) Option {
	return func(ctrl *Controller) { ctrl.confirmer = c }
}

// WithClock replaces time.Now, used for debouncing
func WithClock(now func() time.Time) Option {
	return func(ctrl *Controller) { ctrl.now = now }
}

// WithScanner replaces the default scanner
func WithScanner(s *scan.Scanner) Option {
	return func(ctrl *Controller) { ctrl.scanner = s }
}

// WithOrchestrator replaces the default orchestrator
func WithOrchestrator(o *orchestrator.Orchestrator) Option {
	return func(ctrl *Controller) { ctrl.orch = o }
}

// WithEnv adds KEY=VALUE entries to the engine environment on top of the
// configured ones
func WithEnv(env ...string) Option {
	return func(ctrl *Controller) { ctrl.extraEnv = append(ctrl.extraEnv, env...) }
}

// Controller is the single entry point for front ends. Operator actions may
// be called from any goroutine; engine events are applied by Run,
// RunUntilFinished or HandleEvent from one goroutine at a time.
type Controller struct {
	mu  sync.Mutex
	cfg *config.Config

	// opMu makes the idle check and the list change or launch that follows
	// it one step, so a run never starts on a list being rebuilt
	opMu sync.Mutex

	tasks     *tasklist.TaskList
	scanner   *scan.Scanner
	modes     *modeswitch.Controller
	orch      *orchestrator.Orchestrator
	confirmer modeswitch.Confirmer
	sink      Sink
	now       func() time.Time
	extraEnv  []string

	stdout     protocol.Decoder
	stderr     protocol.Splitter
	stderrText strings.Builder
	lastReport *Report
}

// New builds a controller around cfg. The controller keeps cfg up to date;
// the caller saves it.
func New(cfg *config.Config, sink Sink, opts ...Option) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	c := &Controller{
		cfg:   cfg,
		tasks: tasklist.New(),
		sink:  sink,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scanner == nil {
		c.scanner = scan.New()
	}
	if c.orch == nil {
		c.orch = orchestrator.New()
	}

	c.modes = modeswitch.New(cfg.InputMode(), c.tasks, c.confirmer, modeswitch.Hooks{
		ModeChanged: c.modeChanged,
		Rescan: func() {
			if err := c.Rescan(); err != nil {
				c.sink.Warn(err)
			}
		},
	}, c.now())
	c.modes.SetDontAskAgain(cfg.Options.DontAskOnModeChange)
	return c
}

// Init populates the list for the persisted mode. Call it once the front end
// is ready to receive sink calls.
func (c *Controller) Init() {
	c.sink.ModeChanged(c.Mode())
	if c.Mode() == types.ModeDirectoryScan {
		if err := c.Rescan(); err != nil {
			c.sink.Warn(err)
		}
	}
}

func (c *Controller) modeChanged(mode types.InputMode) {
	c.mu.Lock()
	c.cfg.Options.UseDirectoryMode = mode == types.ModeDirectoryScan
	c.mu.Unlock()
	c.sink.ModeChanged(mode)
	c.sink.TasksChanged()
}

// TaskList exposes the list for read access by the display
func (c *Controller) TaskList() *tasklist.TaskList {
	return c.tasks
}

// Tasks returns a snapshot of the task list
func (c *Controller) Tasks() []types.FileTask {
	return c.tasks.Tasks()
}

// Mode returns the active input mode
func (c *Controller) Mode() types.InputMode {
	return c.modes.Mode()
}

// Running reports whether an engine session is live
func (c *Controller) Running() bool {
	return c.orch.Busy()
}

// State returns the orchestrator state
func (c *Controller) State() orchestrator.State {
	return c.orch.State()
}

// LastReport returns the report of the most recent run
func (c *Controller) LastReport() (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastReport == nil {
		return Report{}, false
	}
	return *c.lastReport, true
}

func (c *Controller) guardIdle() error {
	if c.orch.Busy() {
		return errors.ErrAlreadyRunning
	}
	return nil
}

// lockIdle takes opMu and fails while a run is live. On success the caller
// must release opMu.
func (c *Controller) lockIdle() error {
	c.opMu.Lock()
	if err := c.guardIdle(); err != nil {
		c.opMu.Unlock()
		return err
	}
	return nil
}

// ToggleMode asks to switch between manual and directory mode
func (c *Controller) ToggleMode() (modeswitch.Decision, error) {
	if err := c.guardIdle(); err != nil {
		return modeswitch.Debounced, err
	}
	return c.modes.RequestToggle(c.now()), nil
}

// DontAskOnModeChange reports whether mode switches skip the confirmation
func (c *Controller) DontAskOnModeChange() bool {
	return c.modes.DontAskAgain()
}

// AddFiles adds files and the eligible contents of directories. It returns
// how many new tasks were added.
func (c *Controller) AddFiles(paths ...string) (int, error) {
	if err := c.lockIdle(); err != nil {
		return 0, err
	}
	defer c.opMu.Unlock()
	if c.Mode() != types.ModeManual {
		return 0, errors.NewRunError("files can only be added in manual mode", errors.InvalidOperation, nil)
	}

	added := 0
	for p := range c.scanner.Expand(paths...) {
		if c.tasks.Add(p) {
			added++
		}
	}
	if added > 0 {
		c.sink.TasksChanged()
	}
	log.LogWithFields(log.F("requested", len(paths)), log.F("added", added)).Debug("Files added")
	return added, nil
}

// RemoveSelected removes every selected task
func (c *Controller) RemoveSelected() (int, error) {
	if err := c.lockIdle(); err != nil {
		return 0, err
	}
	defer c.opMu.Unlock()
	n := c.tasks.Remove(c.tasks.SelectedPaths()...)
	if n > 0 {
		c.sink.TasksChanged()
	}
	return n, nil
}

// SelectAll selects everything, or clears the selection if everything was
// selected. It returns the applied selection.
func (c *Controller) SelectAll() (bool, error) {
	if err := c.lockIdle(); err != nil {
		return false, err
	}
	defer c.opMu.Unlock()
	target := c.tasks.SelectAll()
	c.sink.TasksChanged()
	return target, nil
}

// InvertSelection flips every selection flag
func (c *Controller) InvertSelection() error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	c.tasks.InvertSelection()
	c.sink.TasksChanged()
	return nil
}

// SetSelected sets the selection of one task
func (c *Controller) SetSelected(path string, selected bool) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	if c.tasks.SetSelection(path, selected) {
		c.sink.TasksChanged()
	}
	return nil
}

// SetInputDir stores the directory scanned in directory mode and rescans it
// when that mode is active
func (c *Controller) SetInputDir(dir string) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	c.mu.Lock()
	c.cfg.Paths.InputPath = dir
	if dir != "" {
		c.cfg.Paths.LastSelectedPath = dir
	}
	c.mu.Unlock()

	if c.Mode() == types.ModeDirectoryScan {
		c.rescan()
	}
	return nil
}

// InputDir returns the directory scanned in directory mode
func (c *Controller) InputDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Paths.InputPath
}

// Rescan clears the list and fills it from the input directory. A missing
// directory leaves the list empty.
func (c *Controller) Rescan() error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	c.rescan()
	return nil
}

func (c *Controller) rescan() {
	root := c.InputDir()

	c.tasks.Clear()
	n := 0
	for p := range c.scanner.Scan(root) {
		if c.tasks.Add(p) {
			n++
		}
	}
	log.LogWithFields(log.F("root", root), log.F("files", n)).Info("Input directory scanned")
	c.sink.TasksChanged()
}

// SetOutputDir stores the output directory
func (c *Controller) SetOutputDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Paths.OutputPath = dir
	if dir != "" {
		c.cfg.Paths.LastSelectedPath = dir
	}
}

// OutputDir returns the output directory
func (c *Controller) OutputDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Paths.OutputPath
}

// SetOutputToSource makes the engine write results next to the inputs
func (c *Controller) SetOutputToSource(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Options.OutputToSource = v
}

// OutputToSource reports whether results go next to the inputs
func (c *Controller) OutputToSource() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Options.OutputToSource
}

// SetPolicy stores the conflict policy
func (c *Controller) SetPolicy(p types.ConflictPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.SetPolicy(p)
}

// Policy returns the conflict policy
func (c *Controller) Policy() types.ConflictPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Policy()
}

// LastSelectedPath returns where file dialogs should open
func (c *Controller) LastSelectedPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Paths.LastSelectedPath
}

// SetLastSelectedPath remembers the directory of a file dialog selection
func (c *Controller) SetLastSelectedPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Paths.LastSelectedPath = path
}

// Settings writes the live state back into the config and returns it
func (c *Controller) Settings() *config.Config {
	mode := c.modes.Mode()
	dontAsk := c.modes.DontAskAgain()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Options.UseDirectoryMode = mode == types.ModeDirectoryScan
	c.cfg.Options.DontAskOnModeChange = dontAsk
	return c.cfg
}

func (c *Controller) engineOptions() orchestrator.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts := orchestrator.Options{
		Engine: c.cfg.EnginePath(),
		Policy: c.cfg.Policy(),
		Env:    append(c.cfg.EngineEnv(), c.extraEnv...),
	}
	if !c.cfg.Options.OutputToSource {
		opts.OutputDir = c.cfg.Paths.OutputPath
	}
	return opts
}

func (c *Controller) hasOutputTarget() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Options.OutputToSource || c.cfg.Paths.OutputPath != ""
}

func (c *Controller) resetStreams() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stdout = protocol.Decoder{}
	c.stderr = protocol.Splitter{}
	c.stderrText.Reset()
}

// Start runs the engine over the selected tasks
func (c *Controller) Start() error {
	if err := c.lockIdle(); err != nil {
		c.sink.Warn(err)
		return err
	}
	defer c.opMu.Unlock()
	paths := c.tasks.SelectedPaths()
	if len(paths) == 0 {
		c.sink.Warn(errors.ErrEmptyTaskSet)
		return errors.ErrEmptyTaskSet
	}
	if !c.hasOutputTarget() {
		c.sink.Warn(errors.ErrMissingOutputTarget)
		return errors.ErrMissingOutputTarget
	}

	for _, p := range paths {
		c.tasks.UpdateStatus(p, types.StatusPending, "")
	}
	c.resetStreams()

	if err := c.orch.Start(paths, c.engineOptions()); err != nil {
		c.sink.Warn(err)
		return err
	}
	c.sink.TasksChanged()
	c.sink.AppendLog("--- Processing started ---")
	c.sink.RunStateChanged(true)
	return nil
}

// StartDirectory runs the engine in its single shot directory form over the
// input directory. The task list is not involved.
func (c *Controller) StartDirectory() error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	c.mu.Lock()
	in, out := c.cfg.Paths.InputPath, c.cfg.Paths.OutputPath
	if c.cfg.Options.OutputToSource {
		out = in
	}
	c.mu.Unlock()

	if in == "" {
		return errors.NewRunError("no input directory set", errors.EmptyTaskSet, nil)
	}
	if out == "" {
		return errors.ErrMissingOutputTarget
	}

	c.resetStreams()
	opts := c.engineOptions()
	if err := c.orch.StartDirectory(in, out, opts); err != nil {
		return err
	}
	c.sink.AppendLog("--- Processing started ---")
	c.sink.RunStateChanged(true)
	return nil
}

// Cancel kills the running engine
func (c *Controller) Cancel() error {
	if err := c.orch.Cancel(); err != nil {
		return err
	}
	c.sink.AppendLog("--- Cancelling ---")
	return nil
}

// StartOrCancel is the single start/cancel button
func (c *Controller) StartOrCancel() error {
	switch c.orch.State() {
	case orchestrator.StateRunning:
		return c.Cancel()
	case orchestrator.StateIdle:
		return c.Start()
	default:
		// Starting, cancelling or waiting for the outcome to be handled
		return nil
	}
}

// HandleEvent applies one orchestrator event. It returns the report when the
// event finished a run.
func (c *Controller) HandleEvent(ev orchestrator.Event) *Report {
	switch ev.Type {
	case orchestrator.EventStarted:
		log.LogWithFields(log.F("session", ev.SessionID)).Debug("Engine started")
		return nil

	case orchestrator.EventOutput:
		c.mu.Lock()
		lines := c.stdout.Feed(ev.Data)
		c.mu.Unlock()
		c.applyLines(lines)
		return nil

	case orchestrator.EventError:
		c.mu.Lock()
		lines := c.stderr.Feed(ev.Data)
		c.mu.Unlock()
		c.applyErrorLines(lines)
		return nil

	case orchestrator.EventFinished:
		return c.finish(ev)
	}
	return nil
}

func (c *Controller) applyLines(lines []protocol.Line) {
	changed := false
	for _, l := range lines {
		switch l.Kind {
		case protocol.KindUpdate:
			u := l.Update
			if c.tasks.UpdateStatus(u.Path, u.Status, u.Message) {
				changed = true
			} else {
				log.LogWithFields(log.F("path", u.Path), log.F("token", u.Token)).Debug("Status for a path not in the list")
			}
		case protocol.KindMalformed:
			log.LogWithError(l.Err()).Debug("Malformed status line")
			c.sink.AppendLog(l.Text)
		default:
			c.sink.AppendLog(l.Text)
		}
	}
	if changed {
		c.sink.TasksChanged()
	}
}

func (c *Controller) applyErrorLines(lines []string) {
	if len(lines) == 0 {
		return
	}
	c.mu.Lock()
	for _, l := range lines {
		c.stderrText.WriteString(l)
		c.stderrText.WriteByte('\n')
	}
	c.mu.Unlock()
	for _, l := range lines {
		c.sink.AppendLog(protocol.MarkError(l))
	}
}

func (c *Controller) finish(ev orchestrator.Event) *Report {
	c.mu.Lock()
	outLines := c.stdout.Flush()
	errLines := c.stderr.Flush()
	c.mu.Unlock()
	c.applyLines(outLines)
	c.applyErrorLines(errLines)

	outcome := orchestrator.Outcome{SessionID: ev.SessionID, Reason: orchestrator.ExitCrashed, ExitCode: -1}
	if ev.Outcome != nil {
		outcome = *ev.Outcome
	}

	if outcome.Reason == orchestrator.ExitCrashed && outcome.CancelRequested {
		for _, p := range c.tasks.PathsWithStatus(types.StatusProcessing) {
			c.tasks.UpdateStatus(p, types.StatusCancelled, "")
		}
	} else if !outcome.Success() {
		for _, p := range c.tasks.PathsWithStatus(types.StatusProcessing) {
			c.tasks.UpdateStatus(p, types.StatusFailure, outcome.Label())
		}
	}

	c.mu.Lock()
	stderr := c.stderrText.String()
	c.mu.Unlock()

	report := newReport(outcome, stderr, c.tasks.Counts())

	c.mu.Lock()
	c.lastReport = &report
	c.mu.Unlock()

	logger := log.LogWithFields(
		log.F("session", report.SessionID),
		log.F("result", report.Kind.String()),
		log.F("duration", report.Duration.Round(time.Millisecond).String()),
	)
	if report.Err != nil {
		logger.WithError(report.Err).Warn("Run finished")
	} else {
		logger.Info("Run finished")
	}

	c.sink.TasksChanged()
	c.sink.AppendLog(report.Banner())
	if report.Kind == ReportBackendFailure {
		c.sink.AppendLog(report.Message())
	}

	if err := c.orch.Reset(); err != nil {
		log.LogWithError(err).Warn("Resetting orchestrator failed")
	}
	c.sink.RunFinished(report)
	c.sink.RunStateChanged(false)
	return &report
}

// Run applies engine events until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.orch.Events():
			c.HandleEvent(ev)
		}
	}
}

// RunUntilFinished applies engine events until the current run finishes and
// returns its report. It must not be used while Run is active.
func (c *Controller) RunUntilFinished(ctx context.Context) (Report, error) {
	for {
		select {
		case <-ctx.Done():
			return Report{}, ctx.Err()
		case ev := <-c.orch.Events():
			if r := c.HandleEvent(ev); r != nil {
				return *r, nil
			}
		}
	}
}

// DirOf returns the directory to remember for a picked path
func DirOf(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}
