package errors

import (
	"errors"
	"fmt"
	"strings"
)

// StartFailure narrows down why a worker process could not be launched.
type StartFailure int

const (
	// SpawnFailed covers every launch error that is not one of the below
	SpawnFailed StartFailure = iota
	// MissingExecutable means the engine binary does not exist
	MissingExecutable
	// PermissionDenied means the engine binary exists but cannot be executed
	PermissionDenied
)

func (f StartFailure) String() string {
	switch f {
	case MissingExecutable:
		return "missing executable"
	case PermissionDenied:
		return "permission denied"
	default:
		return "spawn failed"
	}
}

// Remediation returns the message shown to the operator for this failure.
func (f StartFailure) Remediation(engine string) string {
	switch f {
	case MissingExecutable:
		return fmt.Sprintf("Cannot start the backend engine. Check that %q exists next to the application.", engine)
	case PermissionDenied:
		return fmt.Sprintf("Cannot start the backend engine. %q is not executable by the current user.", engine)
	default:
		return fmt.Sprintf("Cannot start the backend engine %q.", engine)
	}
}

// RunError represents errors of a processing run
type RunError struct {
	ApplicationError
	exitCode     int
	stderr       string
	engine       string
	startFailure StartFailure
}

// NewRunError creates a new run error
func NewRunError(msg string, kind ErrorKind, err error) *RunError {
	return &RunError{
		ApplicationError: ApplicationError{
			msg:  msg,
			err:  err,
			kind: kind,
		},
		exitCode: -1,
	}
}

// NewStartError creates a FailedToStart error for engine
func NewStartError(engine string, failure StartFailure, err error) *RunError {
	e := NewRunError("failed to start engine", FailedToStart, err)
	e.engine = engine
	e.startFailure = failure
	return e
}

// NewBackendFailure creates the error reported for a nonzero engine exit
func NewBackendFailure(exitCode int, stderr string) *RunError {
	e := NewRunError(fmt.Sprintf("engine exited with code %d", exitCode), BackendFailure, nil)
	e.exitCode = exitCode
	e.stderr = stderr
	return e
}

// Error returns the run error message
func (e *RunError) Error() string {
	if e.kind == FailedToStart && e.engine != "" {
		if e.err != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.msg, e.engine, e.startFailure, e.err)
		}
		return fmt.Sprintf("%s: %s (%s)", e.msg, e.engine, e.startFailure)
	}
	if e.kind == BackendFailure && strings.TrimSpace(e.stderr) != "" {
		return fmt.Sprintf("%s: %s", e.msg, strings.TrimSpace(e.stderr))
	}
	return e.ApplicationError.Error()
}

// ExitCode returns the engine exit code, or -1 when there is none
func (e *RunError) ExitCode() int {
	return e.exitCode
}

// Stderr returns the diagnostic text the engine wrote before failing
func (e *RunError) Stderr() string {
	return e.stderr
}

// Engine returns the engine path of a FailedToStart error
func (e *RunError) Engine() string {
	return e.engine
}

// StartFailure returns the launch failure classification
func (e *RunError) StartFailure() StartFailure {
	return e.startFailure
}

// Remediation returns an operator facing hint, empty when there is none
func (e *RunError) Remediation() string {
	if e.kind != FailedToStart {
		return ""
	}
	return e.startFailure.Remediation(e.engine)
}

// Run errors with no extra context
var (
	ErrAlreadyRunning      = NewRunError("a run is already in progress", AlreadyRunning, nil)
	ErrEmptyTaskSet        = NewRunError("no files selected for processing", EmptyTaskSet, nil)
	ErrMissingOutputTarget = NewRunError("no output directory set and output to source disabled", MissingOutputTarget, nil)
	ErrNotRunning          = NewRunError("no run in progress", NotRunning, nil)
	ErrCancelled           = NewRunError("run cancelled by user", Cancelled, nil)
)

func isRunKind(err error, kind ErrorKind) bool {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind() == kind
	}
	return false
}

// IsAlreadyRunning checks if the error rejects a start while a run is live
func IsAlreadyRunning(err error) bool { return isRunKind(err, AlreadyRunning) }

// IsEmptyTaskSet checks if the error rejects a start with nothing selected
func IsEmptyTaskSet(err error) bool { return isRunKind(err, EmptyTaskSet) }

// IsMissingOutputTarget checks if the error rejects a start without output target
func IsMissingOutputTarget(err error) bool { return isRunKind(err, MissingOutputTarget) }

// IsFailedToStart checks if the engine could not be launched
func IsFailedToStart(err error) bool { return isRunKind(err, FailedToStart) }

// IsBackendFailure checks if the engine exited with a nonzero code
func IsBackendFailure(err error) bool { return isRunKind(err, BackendFailure) }

// IsCancelled checks if the run was cancelled by the operator
func IsCancelled(err error) bool { return isRunKind(err, Cancelled) }

// IsNotRunning checks if a cancel was requested without a live run
func IsNotRunning(err error) bool { return isRunKind(err, NotRunning) }

// ProtocolError describes a status line that could not be decoded. It is only
// ever logged; malformed lines degrade to plain log output.
type ProtocolError struct {
	ApplicationError
	line string
}

// NewProtocolError creates a MalformedProtocolLine error for line
func NewProtocolError(line string) *ProtocolError {
	return &ProtocolError{
		ApplicationError: ApplicationError{
			msg:  "malformed status line",
			kind: MalformedProtocolLine,
		},
		line: line,
	}
}

// Error returns the protocol error message
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %q", e.msg, e.line)
}

// Line returns the offending line
func (e *ProtocolError) Line() string {
	return e.line
}
