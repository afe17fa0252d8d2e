package orchestrator

import (
	"fmt"
	"time"
)

// State is the lifecycle state of the orchestrator
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateCancelling
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ExitReason says how a session ended
type ExitReason int

const (
	// ExitNormal means the engine exited by itself with an exit code
	ExitNormal ExitReason = iota
	// ExitCrashed means the engine was killed or terminated by a signal
	ExitCrashed
	// ExitFailedToStart means no process was ever running
	ExitFailedToStart
)

func (r ExitReason) String() string {
	switch r {
	case ExitNormal:
		return "normal"
	case ExitCrashed:
		return "crashed"
	case ExitFailedToStart:
		return "failed_to_start"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Session describes one engine run
type Session struct {
	ID               string
	State            State
	PendingTaskPaths []string
	Engine           string
	Args             []string
	PID              int
	ExitCode         int
	ExitReason       ExitReason
	CancelRequested  bool
	StartedAt        time.Time

	outcome *Outcome
}

func (s *Session) snapshot() Session {
	c := *s
	c.PendingTaskPaths = append([]string(nil), s.PendingTaskPaths...)
	c.Args = append([]string(nil), s.Args...)
	c.outcome = nil
	return c
}

// Outcome is the result of a finished session
type Outcome struct {
	SessionID       string
	Reason          ExitReason
	ExitCode        int
	CancelRequested bool
	Duration        time.Duration
	// Err is set for ExitFailedToStart
	Err error
}

// Success reports a normal exit with code 0
func (o Outcome) Success() bool {
	return o.Reason == ExitNormal && o.ExitCode == 0
}

// Label describes the outcome for the operator
func (o Outcome) Label() string {
	switch o.Reason {
	case ExitFailedToStart:
		return "failed to start"
	case ExitCrashed:
		if o.CancelRequested {
			return "cancelled by user"
		}
		return "abnormal exit"
	default:
		if o.ExitCode == 0 {
			return "success"
		}
		return fmt.Sprintf("failed with exit code %d", o.ExitCode)
	}
}

// EventType identifies an event
type EventType int

const (
	EventStarted EventType = iota
	EventOutput
	EventError
	EventFinished
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventOutput:
		return "output"
	case EventError:
		return "error"
	case EventFinished:
		return "finished"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a lifecycle notification or a raw output chunk
type Event struct {
	Type      EventType
	SessionID string
	// Data holds the chunk of EventOutput and EventError
	Data []byte
	// Outcome is set on EventFinished
	Outcome *Outcome
}
