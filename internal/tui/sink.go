package tui

import (
	"sync"

	"salesdesk/internal/batch"
	"salesdesk/pkg/types"

	tea "github.com/charmbracelet/bubbletea"
)

// Sender is satisfied by *tea.Program
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramSink forwards controller notifications into a bubbletea program.
// Calls made before Attach are dropped.
type ProgramSink struct {
	mu sync.RWMutex
	to Sender
}

// Attach sets the program that receives the notifications
func (s *ProgramSink) Attach(to Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = to
}

func (s *ProgramSink) send(msg tea.Msg) {
	s.mu.RLock()
	to := s.to
	s.mu.RUnlock()
	if to != nil {
		to.Send(msg)
	}
}

func (s *ProgramSink) AppendLog(line string)        { s.send(logMsg(line)) }
func (s *ProgramSink) TasksChanged()                { s.send(tasksMsg{}) }
func (s *ProgramSink) ModeChanged(types.InputMode)  {}
func (s *ProgramSink) RunStateChanged(running bool) { s.send(runStateMsg(running)) }
func (s *ProgramSink) RunFinished(r batch.Report)   { s.send(finishedMsg(r)) }

// Warn is a no-op: a refused start reaches the model as the error returned by
// Start.
func (s *ProgramSink) Warn(error) {}
