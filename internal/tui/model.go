// Package tui renders a running batch in the terminal with bubbletea.
package tui

import (
	"context"
	"fmt"
	"strings"

	"salesdesk/internal/batch"
	"salesdesk/pkg/types"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// maxLogLines is how much of the engine output stays on screen
const maxLogLines = 8

// Runner is the part of the batch controller the view drives
type Runner interface {
	Start() error
	Cancel() error
	Tasks() []types.FileTask
	RunUntilFinished(ctx context.Context) (batch.Report, error)
}

type (
	tasksMsg    struct{}
	logMsg      string
	runStateMsg bool
	finishedMsg batch.Report
	errMsg      struct{ err error }
)

// Model is the bubbletea model of one run
type Model struct {
	ctx    context.Context
	runner Runner
	styles Styles

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	bar     progress.Model

	tasks      []types.FileTask
	logs       []string
	hideLogs   bool
	running    bool
	cancelling bool
	report     *batch.Report
	err        error
}

// New creates the view for a run. The run starts when the program starts.
func New(ctx context.Context, runner Runner, styles Styles) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Info

	bar := progress.New(progress.WithSolidFill(styles.Bar), progress.WithoutPercentage())
	bar.Width = 40

	keys := defaultKeyMap()
	keys.setRunning(false)

	return &Model{
		ctx:     ctx,
		runner:  runner,
		styles:  styles,
		keys:    keys,
		help:    help.New(),
		spinner: s,
		bar:     bar,
		tasks:   runner.Tasks(),
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start)
}

func (m *Model) start() tea.Msg {
	if err := m.runner.Start(); err != nil {
		return errMsg{err}
	}
	// The report arrives through the sink
	if _, err := m.runner.RunUntilFinished(m.ctx); err != nil {
		return errMsg{err}
	}
	return nil
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-30, 10), 60)
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tasksMsg:
		m.tasks = m.runner.Tasks()
		return m, nil

	case logMsg:
		m.logs = append(m.logs, string(msg))
		if over := len(m.logs) - maxLogLines; over > 0 {
			m.logs = m.logs[over:]
		}
		return m, nil

	case runStateMsg:
		m.running = bool(msg)
		m.keys.setRunning(m.running)
		return m, nil

	case finishedMsg:
		r := batch.Report(msg)
		m.report = &r
		m.running = false
		m.keys.setRunning(false)
		m.tasks = m.runner.Tasks()
		return m, tea.Quit

	case errMsg:
		m.err = msg.err
		m.running = false
		m.keys.setRunning(false)
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Logs):
		m.hideLogs = !m.hideLogs
		return m, nil

	case key.Matches(msg, m.keys.Quit):
		if m.running && !m.cancelling {
			m.cancelling = true
			if err := m.runner.Cancel(); err != nil {
				m.logs = append(m.logs, "cancel: "+err.Error())
			}
			return m, nil
		}
		if m.running {
			// Second press while the engine is being killed
			return m, nil
		}
		return m, tea.Quit
	}
	return m, nil
}

// Report returns the outcome once the run finished
func (m *Model) Report() (batch.Report, bool) {
	if m.report == nil {
		return batch.Report{}, false
	}
	return *m.report, true
}

// Err returns the error that kept the run from starting
func (m *Model) Err() error {
	return m.err
}

// progressCounts returns finished and total tasks of the run
func (m *Model) progressCounts() (done, total int) {
	for _, t := range m.tasks {
		if !t.Selected {
			continue
		}
		total++
		if t.Status.Terminal() || !t.Status.Known() {
			done++
		}
	}
	return done, total
}

// View implements tea.Model
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Sales Desk"))
	b.WriteString("\n")

	done, total := m.progressCounts()
	switch {
	case m.cancelling && m.running:
		b.WriteString(m.styles.Warning.Render(m.spinner.View() + " Cancelling..."))
	case m.running:
		b.WriteString(m.styles.Status.Render(fmt.Sprintf("%s Processing %d/%d files", m.spinner.View(), done, total)))
	case m.report == nil && m.err == nil:
		b.WriteString(m.styles.Status.Render(m.spinner.View() + " Starting engine..."))
	}
	b.WriteString("\n")

	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}
	b.WriteString(m.bar.ViewAs(pct))
	b.WriteString(fmt.Sprintf(" %d/%d\n\n", done, total))

	width := 0
	for _, t := range m.tasks {
		width = max(width, len(t.Name()))
	}
	for _, t := range m.tasks {
		if !t.Selected {
			continue
		}
		style := m.styles.forStatus(t.Status)
		row := fmt.Sprintf("%s %-*s  %s", mark(t.Status), width, t.Name(), t.Status.Label())
		b.WriteString(style.Render(row))
		if t.Message != "" {
			b.WriteString(" " + m.styles.Muted.Render(t.Message))
		}
		b.WriteString("\n")
	}

	if len(m.logs) > 0 && !m.hideLogs {
		b.WriteString("\n")
		for _, line := range m.logs {
			b.WriteString(m.styles.Muted.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(m.styles.Error.Render(m.err.Error()))
	case m.report != nil:
		style := m.styles.Error
		if m.report.Success() {
			style = m.styles.Success
		} else if m.report.Kind == batch.ReportCancelled {
			style = m.styles.Warning
		}
		b.WriteString(style.Render(m.report.Message()))
		if summary := m.report.Summary(); summary != "" {
			b.WriteString("\n" + m.styles.Info.Render(summary))
		}
	default:
		b.WriteString(m.help.View(m.keys))
	}
	b.WriteString("\n")

	return m.styles.App.Render(b.String())
}
