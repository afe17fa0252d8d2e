// Package orchestrator runs the external processing engine, one process per
// run, and reports its lifecycle and output as events.
package orchestrator

import (
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"time"

	"salesdesk/internal/errors"
	"salesdesk/internal/log"
	"salesdesk/internal/protocol"
	"salesdesk/pkg/types"

	"github.com/google/uuid"
)

// DefaultEncodingEnv forces the engine's standard streams to UTF-8. Entries
// in Options.Env are applied after it and may override it.
const DefaultEncodingEnv = "PYTHONIOENCODING=utf-8"

const (
	eventBuffer = 256
	readSize    = 4096
)

// Options configure one run
type Options struct {
	// Engine is the executable to launch
	Engine string
	// Policy is passed as --on-conflict
	Policy types.ConflictPolicy
	// OutputDir is passed as --output-dir when set. Empty means results are
	// written next to the inputs.
	OutputDir string
	// Env holds extra KEY=VALUE entries on top of the inherited environment
	Env []string
	// Dir is the working directory of the engine, empty for the current one
	Dir string
}

// Orchestrator owns at most one engine process at a time. Its methods are
// safe for concurrent use.
type Orchestrator struct {
	mu      sync.Mutex
	state   State
	session *Session
	cmd     *exec.Cmd
	events  chan Event
}

// New returns an idle orchestrator
func New() *Orchestrator {
	return &Orchestrator{
		state:  StateIdle,
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the channel every session reports on. It is never closed.
// Emission blocks when the consumer falls behind.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// State returns the current lifecycle state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Busy reports whether a session is live, i.e. not Idle
func (o *Orchestrator) Busy() bool {
	return o.State() != StateIdle
}

// Session returns a snapshot of the current or last finished session
func (o *Orchestrator) Session() (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return Session{}, false
	}
	return o.session.snapshot(), true
}

// Start launches the engine for taskPaths. Only precondition violations are
// returned; a launch failure finishes the session with ExitFailedToStart and
// is reported through the Finished event.
func (o *Orchestrator) Start(taskPaths []string, opts Options) error {
	if len(taskPaths) == 0 {
		o.mu.Lock()
		busy := o.state != StateIdle
		o.mu.Unlock()
		if busy {
			return errors.ErrAlreadyRunning
		}
		return errors.ErrEmptyTaskSet
	}

	args := []string{"--on-conflict", opts.Policy.String()}
	if opts.OutputDir != "" {
		args = append(args, "--output-dir", opts.OutputDir)
	}
	return o.launch(taskPaths, args, opts)
}

// StartDirectory launches the engine in its single shot form
// `<engine> <inputDir> <outputDir> --on-conflict <policy>`. Nothing is
// written to stdin.
func (o *Orchestrator) StartDirectory(inputDir, outputDir string, opts Options) error {
	args := []string{inputDir, outputDir, "--on-conflict", opts.Policy.String()}
	return o.launch(nil, args, opts)
}

func (o *Orchestrator) launch(taskPaths, args []string, opts Options) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return errors.ErrAlreadyRunning
	}
	pending := make([]string, len(taskPaths))
	copy(pending, taskPaths)
	s := &Session{
		ID:               uuid.NewString(),
		State:            StateStarting,
		PendingTaskPaths: pending,
		Engine:           opts.Engine,
		Args:             append([]string(nil), args...),
		ExitCode:         -1,
		StartedAt:        time.Now(),
	}
	o.session = s
	o.state = StateStarting
	o.mu.Unlock()

	logger := log.LogWithFields(log.F("session", s.ID), log.F("engine", opts.Engine))
	logger.With(log.F("tasks", len(pending)), log.F("args", args)).Info("Starting engine")

	cmd := exec.Command(opts.Engine, args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(append(os.Environ(), DefaultEncodingEnv), opts.Env...)

	stdin, stdout, stderr, err := pipes(cmd)
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		startErr := errors.NewStartError(opts.Engine, classifyStartError(err), err)
		logger.WithError(startErr).Error("Engine failed to start")
		o.finish(s, Outcome{
			SessionID: s.ID,
			Reason:    ExitFailedToStart,
			ExitCode:  -1,
			Err:       startErr,
		})
		// Start returns before the consumer sees the outcome.
		go o.emit(Event{Type: EventFinished, SessionID: s.ID, Outcome: o.lastOutcome(s)})
		return nil
	}

	o.mu.Lock()
	o.cmd = cmd
	o.state = StateRunning
	s.State = StateRunning
	s.PID = cmd.Process.Pid
	o.mu.Unlock()

	go o.run(s, cmd, pending, stdin, stdout, stderr)
	return nil
}

func pipes(cmd *exec.Cmd) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, nil, nil, err
	}
	return stdin, stdout, stderr, nil
}

func classifyStartError(err error) errors.StartFailure {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return errors.MissingExecutable
	case errors.Is(err, fs.ErrPermission):
		return errors.PermissionDenied
	default:
		return errors.SpawnFailed
	}
}

func (o *Orchestrator) run(s *Session, cmd *exec.Cmd, taskPaths []string, stdin io.WriteCloser, stdout, stderr io.ReadCloser) {
	o.emit(Event{Type: EventStarted, SessionID: s.ID})

	go func() {
		defer stdin.Close()
		if err := protocol.EncodeTasks(stdin, taskPaths); err != nil {
			// The engine may exit or be killed before reading everything.
			log.LogWithFields(log.F("session", s.ID), log.F("error", err.Error())).Debug("Writing task list failed")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go o.pump(&wg, s.ID, stdout, EventOutput)
	go o.pump(&wg, s.ID, stderr, EventError)
	wg.Wait()

	waitErr := cmd.Wait()

	o.mu.Lock()
	cancelled := s.CancelRequested
	o.mu.Unlock()

	outcome := classifyExit(cmd.ProcessState, cancelled)
	outcome.SessionID = s.ID
	log.LogWithFields(
		log.F("session", s.ID),
		log.F("exit_code", outcome.ExitCode),
		log.F("reason", outcome.Reason.String()),
		log.F("wait_error", errString(waitErr)),
	).Info("Engine finished")

	o.finish(s, outcome)
	o.emit(Event{Type: EventFinished, SessionID: s.ID, Outcome: o.lastOutcome(s)})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// pump forwards raw chunks of r until EOF
func (o *Orchestrator) pump(wg *sync.WaitGroup, sessionID string, r io.Reader, typ EventType) {
	defer wg.Done()
	buf := make([]byte, readSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			o.emit(Event{Type: typ, SessionID: sessionID, Data: data})
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, fs.ErrClosed) {
				log.LogWithFields(log.F("session", sessionID), log.F("error", err.Error())).Debug("Engine stream read failed")
			}
			return
		}
	}
}

// classifyExit maps a process state to an outcome. A process terminated by a
// signal, or any unsuccessful exit after a cancel, counts as a crash.
func classifyExit(state *os.ProcessState, cancelled bool) Outcome {
	code := -1
	if state != nil {
		code = state.ExitCode()
	}
	out := Outcome{ExitCode: code, CancelRequested: cancelled}
	switch {
	case code == 0:
		out.Reason = ExitNormal
	case code < 0, cancelled:
		out.Reason = ExitCrashed
	default:
		out.Reason = ExitNormal
	}
	return out
}

func (o *Orchestrator) finish(s *Session, outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	outcome.CancelRequested = s.CancelRequested
	outcome.Duration = time.Since(s.StartedAt)
	s.State = StateFinished
	s.ExitCode = outcome.ExitCode
	s.ExitReason = outcome.Reason
	s.outcome = &outcome
	o.state = StateFinished
	o.cmd = nil
}

func (o *Orchestrator) lastOutcome(s *Session) *Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := *s.outcome
	return &out
}

func (o *Orchestrator) emit(ev Event) {
	o.events <- ev
}

// Cancel kills the running engine without waiting for it. The session
// finishes through the usual Finished event.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateRunning || o.cmd == nil {
		return errors.ErrNotRunning
	}
	o.state = StateCancelling
	o.session.State = StateCancelling
	o.session.CancelRequested = true

	if err := o.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.LogWithFields(log.F("session", o.session.ID), log.F("error", err.Error())).Warn("Killing engine failed")
		return errors.Wrap(err, "failed to kill engine")
	}
	log.LogWithFields(log.F("session", o.session.ID)).Info("Engine cancelled")
	return nil
}

// Reset returns a Finished orchestrator to Idle once its outcome has been
// handled. Resetting an idle orchestrator is a no-op.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateIdle:
		return nil
	case StateFinished:
		o.state = StateIdle
		return nil
	default:
		return errors.NewRunError("cannot reset a live session", errors.InvalidOperation, nil)
	}
}
