package batch

import "salesdesk/pkg/types"

// Sink receives everything a front end displays. Calls arrive from the
// goroutine that drives the controller; implementations that touch a UI
// toolkit must hop to its thread themselves.
type Sink interface {
	// AppendLog adds one line to the run log
	AppendLog(line string)
	// TasksChanged signals that the task list or a task status changed
	TasksChanged()
	// ModeChanged mirrors the active input mode
	ModeChanged(mode types.InputMode)
	// RunStateChanged toggles between the start and cancel affordance
	RunStateChanged(running bool)
	// RunFinished delivers the outcome of a run
	RunFinished(r Report)
	// Warn reports a rejected operator action
	Warn(err error)
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) AppendLog(string)            {}
func (NopSink) TasksChanged()               {}
func (NopSink) ModeChanged(types.InputMode) {}
func (NopSink) RunStateChanged(bool)        {}
func (NopSink) RunFinished(Report)          {}
func (NopSink) Warn(error)                  {}
