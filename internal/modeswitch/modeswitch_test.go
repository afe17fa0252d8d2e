package modeswitch

import (
	"testing"
	"time"

	"salesdesk/internal/tasklist"
	"salesdesk/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctrl     *Controller
	tasks    *tasklist.TaskList
	asked    int
	pending  func(Answer)
	reply    *Answer
	modes    []types.InputMode
	rescans  int
	baseTime time.Time
}

// newFixture builds a controller whose confirmer answers with reply, or
// parks the callback in pending when reply is nil.
func newFixture(mode types.InputMode, reply *Answer) *fixture {
	f := &fixture{
		tasks:    tasklist.New(),
		reply:    reply,
		baseTime: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	confirmer := ConfirmerFunc(func(answer func(Answer)) {
		f.asked++
		if f.reply != nil {
			answer(*f.reply)
			return
		}
		f.pending = answer
	})
	f.ctrl = New(mode, f.tasks, confirmer, Hooks{
		ModeChanged: func(m types.InputMode) { f.modes = append(f.modes, m) },
		Rescan:      func() { f.rescans++ },
	}, f.baseTime)
	return f
}

func (f *fixture) at(d time.Duration) time.Time {
	return f.baseTime.Add(d)
}

func TestDebounce(t *testing.T) {
	f := newFixture(types.ModeManual, nil)

	assert.Equal(t, Debounced, f.ctrl.RequestToggle(f.at(100*time.Millisecond)))
	assert.Equal(t, Debounced, f.ctrl.RequestToggle(f.at(299*time.Millisecond)))
	assert.Equal(t, types.ModeManual, f.ctrl.Mode())

	// The boundary itself passes
	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(300*time.Millisecond)))
	assert.Equal(t, types.ModeDirectoryScan, f.ctrl.Mode())

	assert.Equal(t, Debounced, f.ctrl.RequestToggle(f.at(500*time.Millisecond)))
	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(600*time.Millisecond)))
	assert.Equal(t, types.ModeManual, f.ctrl.Mode())
}

func TestDebouncedRequestDoesNotMoveWindow(t *testing.T) {
	f := newFixture(types.ModeManual, nil)

	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(time.Second)))
	assert.Equal(t, Debounced, f.ctrl.RequestToggle(f.at(time.Second+200*time.Millisecond)))
	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(time.Second+300*time.Millisecond)))
}

func TestEmptyListTogglesWithoutConfirmation(t *testing.T) {
	f := newFixture(types.ModeManual, nil)

	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(time.Second)))
	assert.Equal(t, 0, f.asked)
	assert.Equal(t, []types.InputMode{types.ModeDirectoryScan}, f.modes)
	assert.Equal(t, 1, f.rescans)

	// Back to manual does not rescan
	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(2*time.Second)))
	assert.Equal(t, 1, f.rescans)
	assert.Equal(t, []types.InputMode{types.ModeDirectoryScan, types.ModeManual}, f.modes)
}

func TestConfirmAccepted(t *testing.T) {
	f := newFixture(types.ModeManual, &Answer{Accept: true})
	f.tasks.Add("/d/a.csv")

	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(time.Second)))
	assert.Equal(t, 1, f.asked)
	assert.Equal(t, 0, f.tasks.Len())
	assert.Equal(t, types.ModeDirectoryScan, f.ctrl.Mode())
	assert.False(t, f.ctrl.DontAskAgain())
	assert.Equal(t, 1, f.rescans)
}

func TestConfirmDeclined(t *testing.T) {
	f := newFixture(types.ModeManual, &Answer{Accept: false, DontAskAgain: true})
	f.tasks.Add("/d/a.csv")

	assert.Equal(t, Declined, f.ctrl.RequestToggle(f.at(time.Second)))
	assert.Equal(t, 1, f.tasks.Len())
	assert.Equal(t, types.ModeManual, f.ctrl.Mode())
	assert.False(t, f.ctrl.DontAskAgain())
	assert.Empty(t, f.modes)
	assert.Zero(t, f.rescans)

	// The declined request still moved the debounce window
	assert.Equal(t, Debounced, f.ctrl.RequestToggle(f.at(time.Second+100*time.Millisecond)))
}

func TestDontAskAgain(t *testing.T) {
	f := newFixture(types.ModeManual, &Answer{Accept: true, DontAskAgain: true})
	f.tasks.Add("/d/a.csv")

	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(time.Second)))
	assert.True(t, f.ctrl.DontAskAgain())

	f.tasks.Add("/d/b.csv")
	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(2*time.Second)))
	assert.Equal(t, 1, f.asked)
	assert.Equal(t, 0, f.tasks.Len())
}

func TestSetDontAskAgainSkipsConfirmation(t *testing.T) {
	f := newFixture(types.ModeDirectoryScan, nil)
	f.ctrl.SetDontAskAgain(true)
	f.tasks.Add("/d/a.csv")

	assert.Equal(t, Toggled, f.ctrl.RequestToggle(f.at(time.Second)))
	assert.Equal(t, 0, f.asked)
	assert.Equal(t, types.ModeManual, f.ctrl.Mode())
}

func TestAsynchronousConfirmation(t *testing.T) {
	f := newFixture(types.ModeManual, nil)
	f.tasks.Add("/d/a.csv")

	assert.Equal(t, AwaitingConfirmation, f.ctrl.RequestToggle(f.at(time.Second)))
	assert.True(t, f.ctrl.Awaiting())
	require.NotNil(t, f.pending)
	assert.Equal(t, types.ModeManual, f.ctrl.Mode())

	// A second request while the dialog is open has no effect
	assert.Equal(t, Pending, f.ctrl.RequestToggle(f.at(2*time.Second)))
	assert.Equal(t, 1, f.asked)

	f.pending(Answer{Accept: true})
	assert.False(t, f.ctrl.Awaiting())
	assert.Equal(t, types.ModeDirectoryScan, f.ctrl.Mode())
	assert.Equal(t, 0, f.tasks.Len())

	// Answering twice is ignored
	f.pending(Answer{Accept: true})
	assert.Equal(t, types.ModeDirectoryScan, f.ctrl.Mode())
}

func TestAsynchronousDecline(t *testing.T) {
	f := newFixture(types.ModeManual, nil)
	f.tasks.Add("/d/a.csv")

	assert.Equal(t, AwaitingConfirmation, f.ctrl.RequestToggle(f.at(time.Second)))
	f.pending(Answer{Accept: false})

	assert.False(t, f.ctrl.Awaiting())
	assert.Equal(t, types.ModeManual, f.ctrl.Mode())
	assert.Equal(t, 1, f.tasks.Len())
}

func TestNilConfirmerToggles(t *testing.T) {
	tasks := tasklist.New()
	tasks.Add("/d/a.csv")
	now := time.Now()
	c := New(types.ModeManual, tasks, nil, Hooks{}, now)

	assert.Equal(t, Toggled, c.RequestToggle(now.Add(time.Second)))
	assert.Equal(t, 0, tasks.Len())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "toggled", Toggled.String())
	assert.Equal(t, "awaiting_confirmation", AwaitingConfirmation.String())
}
