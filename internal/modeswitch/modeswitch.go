// Package modeswitch decides when the input mode may flip between manual file
// selection and directory scanning.
package modeswitch

import (
	"fmt"
	"sync"
	"time"

	"salesdesk/internal/log"
	"salesdesk/pkg/types"
)

// DebounceInterval is the minimum time between two acted upon toggles
const DebounceInterval = 300 * time.Millisecond

// Decision is the result of a toggle request
type Decision int

const (
	// Debounced means the request came too soon after the previous one
	Debounced Decision = iota
	// Toggled means the mode flipped
	Toggled
	// Declined means the operator refused the confirmation
	Declined
	// AwaitingConfirmation means the confirmer has not answered yet
	AwaitingConfirmation
	// Pending means an earlier confirmation is still outstanding
	Pending
)

func (d Decision) String() string {
	switch d {
	case Debounced:
		return "debounced"
	case Toggled:
		return "toggled"
	case Declined:
		return "declined"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Pending:
		return "pending"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Answer is the operator's reply to a confirmation
type Answer struct {
	Accept       bool
	DontAskAgain bool
}

// Confirmer asks the operator whether clearing a non-empty list is fine. It
// must call answer exactly once, either before returning or later.
type Confirmer interface {
	ConfirmModeChange(answer func(Answer))
}

// ConfirmerFunc adapts a function to Confirmer
type ConfirmerFunc func(answer func(Answer))

// ConfirmModeChange calls f
func (f ConfirmerFunc) ConfirmModeChange(answer func(Answer)) { f(answer) }

// TaskList is the part of the task list the controller touches
type TaskList interface {
	Len() int
	Clear()
}

// Hooks are notified after an accepted toggle. Either may be nil.
type Hooks struct {
	// ModeChanged mirrors the new mode in the display
	ModeChanged func(types.InputMode)
	// Rescan repopulates the list after switching to directory mode
	Rescan func()
}

// Controller owns the input mode. All mode changes go through RequestToggle.
type Controller struct {
	mu           sync.Mutex
	mode         types.InputMode
	dontAsk      bool
	lastAccepted time.Time
	awaiting     bool

	tasks     TaskList
	confirmer Confirmer
	hooks     Hooks
}

// New returns a controller in mode. The debounce window starts at now.
func New(mode types.InputMode, tasks TaskList, confirmer Confirmer, hooks Hooks, now time.Time) *Controller {
	return &Controller{
		mode:         mode,
		lastAccepted: now,
		tasks:        tasks,
		confirmer:    confirmer,
		hooks:        hooks,
	}
}

// Mode returns the active mode
func (c *Controller) Mode() types.InputMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// DontAskAgain reports whether confirmations are suppressed
func (c *Controller) DontAskAgain() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dontAsk
}

// SetDontAskAgain sets the sticky confirmation flag
func (c *Controller) SetDontAskAgain(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dontAsk = v
}

// Awaiting reports whether a confirmation is outstanding
func (c *Controller) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

// RequestToggle handles one operator toggle at time now
func (c *Controller) RequestToggle(now time.Time) Decision {
	c.mu.Lock()
	if now.Sub(c.lastAccepted) < DebounceInterval {
		c.mu.Unlock()
		log.Debugf("Mode toggle debounced")
		return Debounced
	}
	c.lastAccepted = now

	if c.awaiting {
		c.mu.Unlock()
		return Pending
	}

	if c.tasks.Len() == 0 || c.dontAsk || c.confirmer == nil {
		c.mu.Unlock()
		c.apply()
		return Toggled
	}

	c.awaiting = true
	c.mu.Unlock()

	var (
		once     sync.Once
		answered = make(chan Decision, 1)
	)
	c.confirmer.ConfirmModeChange(func(a Answer) {
		once.Do(func() {
			answered <- c.resolve(a)
		})
	})

	select {
	case d := <-answered:
		return d
	default:
		return AwaitingConfirmation
	}
}

func (c *Controller) resolve(a Answer) Decision {
	c.mu.Lock()
	c.awaiting = false
	if !a.Accept {
		c.mu.Unlock()
		log.Debugf("Mode change declined")
		return Declined
	}
	if a.DontAskAgain {
		c.dontAsk = true
	}
	c.mu.Unlock()
	c.apply()
	return Toggled
}

func (c *Controller) apply() {
	c.tasks.Clear()

	c.mu.Lock()
	c.mode = c.mode.Toggle()
	mode := c.mode
	c.mu.Unlock()

	log.LogWithFields(log.F("mode", mode.String())).Info("Input mode changed")

	if c.hooks.ModeChanged != nil {
		c.hooks.ModeChanged(mode)
	}
	if mode == types.ModeDirectoryScan && c.hooks.Rescan != nil {
		c.hooks.Rescan()
	}
}
