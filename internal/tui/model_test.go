package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"salesdesk/internal/batch"
	"salesdesk/internal/config"
	serrors "salesdesk/internal/errors"
	"salesdesk/pkg/testutils"
	"salesdesk/pkg/types"

	alsrt "github.com/alecthomas/assert"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testutils.RunFakeWorkerIfRequested()
	os.Exit(m.Run())
}

type fakeRunner struct {
	mu        sync.Mutex
	tasks     []types.FileTask
	startErr  error
	cancelled int
}

func (r *fakeRunner) Start() error { return r.startErr }

func (r *fakeRunner) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled++
	return nil
}

func (r *fakeRunner) Tasks() []types.FileTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.FileTask, len(r.tasks))
	copy(out, r.tasks)
	return out
}

func (r *fakeRunner) RunUntilFinished(context.Context) (batch.Report, error) {
	return batch.Report{}, nil
}

func (r *fakeRunner) set(i int, status types.TaskStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[i].Status = status
	r.tasks[i].Message = message
}

func newFakeRunner(names ...string) *fakeRunner {
	r := &fakeRunner{}
	for _, n := range names {
		r.tasks = append(r.tasks, types.NewFileTask("/data/"+n))
	}
	return r
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func view(m *Model) string {
	return testutils.StripANSI(m.View())
}

func TestStartFailureQuits(t *testing.T) {
	r := newFakeRunner("jd.csv")
	r.startErr = serrors.ErrMissingOutputTarget
	m := New(context.Background(), r, NewStyles("default"))

	msg := m.start()
	require.IsType(t, errMsg{}, msg)

	_, cmd := m.Update(msg)
	assert.True(t, isQuit(cmd))
	assert.ErrorIs(t, m.Err(), serrors.ErrMissingOutputTarget)
	_, ok := m.Report()
	assert.False(t, ok)
	alsrt.Contains(t, view(m), serrors.ErrMissingOutputTarget.Error())
}

func TestProgressFollowsTasks(t *testing.T) {
	r := newFakeRunner("jd.csv", "pdd.csv", "tmall.xlsx")
	m := New(context.Background(), r, NewStyles("dark"))
	alsrt.Contains(t, view(m), "Starting engine...")

	m.Update(runStateMsg(true))
	r.set(0, types.StatusSuccess, "written")
	r.set(1, types.StatusProcessing, "")
	m.Update(tasksMsg{})

	out := view(m)
	alsrt.Contains(t, out, "Processing 1/3 files")
	alsrt.Contains(t, out, "✓ jd.csv")
	alsrt.Contains(t, out, "Done written")
	alsrt.Contains(t, out, "Processing...")
	alsrt.Contains(t, out, "q cancel")

	done, total := m.progressCounts()
	assert.Equal(t, 1, done)
	assert.Equal(t, 3, total)

	// Tokens the engine invented count as finished
	r.set(2, types.ReportedStatus("WEIRD"), "")
	m.Update(tasksMsg{})
	done, _ = m.progressCounts()
	assert.Equal(t, 2, done)
	alsrt.Contains(t, view(m), "? tmall.xlsx")
}

func TestLogIsBounded(t *testing.T) {
	m := New(context.Background(), newFakeRunner(), NewStyles("default"))
	for i := 0; i < maxLogLines+5; i++ {
		m.Update(logMsg(fmt.Sprintf("line %d", i)))
	}
	require.Len(t, m.logs, maxLogLines)
	assert.Equal(t, "line 5", m.logs[0])
	out := view(m)
	assert.NotContains(t, out, "line 4")
	alsrt.Contains(t, out, fmt.Sprintf("line %d", maxLogLines+4))

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	assert.NotContains(t, view(m), "line 5")
	assert.Len(t, m.logs, maxLogLines, "hidden lines are kept")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	alsrt.Contains(t, view(m), "line 5")
}

func TestHelpFollowsRunState(t *testing.T) {
	m := New(context.Background(), newFakeRunner("jd.csv"), NewStyles("default"))
	alsrt.Contains(t, view(m), "q quit")

	m.Update(runStateMsg(true))
	alsrt.Contains(t, view(m), "q cancel")
	alsrt.Contains(t, view(m), "l toggle log")

	m.Update(runStateMsg(false))
	alsrt.Contains(t, view(m), "q quit")
}

func TestQuitCancelsRunningEngine(t *testing.T) {
	r := newFakeRunner("jd.csv")
	m := New(context.Background(), r, NewStyles("default"))
	m.Update(runStateMsg(true))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.False(t, isQuit(cmd))
	assert.Equal(t, 1, r.cancelled)
	alsrt.Contains(t, view(m), "Cancelling...")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.False(t, isQuit(cmd), "the second press waits for the engine")
	assert.Equal(t, 1, r.cancelled)

	_, cmd = m.Update(finishedMsg(batch.Report{Kind: batch.ReportCancelled}))
	assert.True(t, isQuit(cmd))
	alsrt.Contains(t, view(m), "Processing cancelled by user.")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, isQuit(cmd))
}

func TestFinishedShowsReport(t *testing.T) {
	r := newFakeRunner("jd.csv", "pdd.csv")
	m := New(context.Background(), r, NewStyles("monochrome"))
	r.set(0, types.StatusSuccess, "")
	r.set(1, types.StatusSuccess, "")

	_, cmd := m.Update(finishedMsg(batch.Report{
		Kind:   batch.ReportSuccess,
		Counts: map[types.TaskStatus]int{types.StatusSuccess: 2},
	}))
	assert.True(t, isQuit(cmd))

	report, ok := m.Report()
	require.True(t, ok)
	assert.True(t, report.Success())

	out := view(m)
	alsrt.Contains(t, out, "Processing succeeded.")
	alsrt.Contains(t, out, "Done: 2")
	alsrt.Contains(t, out, "2/2")
}

func TestWindowSizeResizesBar(t *testing.T) {
	m := New(context.Background(), newFakeRunner(), NewStyles("default"))
	m.Update(tea.WindowSizeMsg{Width: 200, Height: 40})
	assert.Equal(t, 60, m.bar.Width)
	m.Update(tea.WindowSizeMsg{Width: 20, Height: 40})
	assert.Equal(t, 10, m.bar.Width)
}

func TestNewStylesFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "213", NewStyles("no-such-theme").Bar)
	assert.Equal(t, "105", NewStyles("dark").Bar)
}

type chanSender chan tea.Msg

func (c chanSender) Send(msg tea.Msg) { c <- msg }

func TestProgramSinkForwards(t *testing.T) {
	var s ProgramSink
	s.AppendLog("dropped before attach")

	to := make(chanSender, 8)
	s.Attach(to)
	s.AppendLog("hello")
	s.TasksChanged()
	s.RunStateChanged(true)
	s.ModeChanged(types.ModeManual)
	s.Warn(errors.New("ignored"))
	s.RunFinished(batch.Report{Kind: batch.ReportSuccess})
	close(to)

	var got []tea.Msg
	for msg := range to {
		got = append(got, msg)
	}
	assert.Equal(t, []tea.Msg{
		logMsg("hello"),
		tasksMsg{},
		runStateMsg(true),
		finishedMsg(batch.Report{Kind: batch.ReportSuccess}),
	}, got)
}

func TestRunsRealController(t *testing.T) {
	dir := t.TempDir()
	files := testutils.CreateDataFiles(t, dir)

	cfg := config.New()
	cfg.Engine.Path = testutils.FakeEngine(t)
	cfg.Options.OutputToSource = true

	sink := &ProgramSink{}
	ctrl := batch.New(cfg, sink, batch.WithEnv(testutils.FakeWorkerEnviron(testutils.WorkerSuccess)...))
	_, err := ctrl.AddFiles(files...)
	require.NoError(t, err)

	msgs := make(chanSender, 64)
	sink.Attach(msgs)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m := New(ctx, ctrl, NewStyles("default"))

	go func() {
		if msg := m.start(); msg != nil {
			msgs <- msg
		}
	}()

	for {
		select {
		case msg := <-msgs:
			_, cmd := m.Update(msg)
			if isQuit(cmd) {
				require.NoError(t, m.Err())
				report, ok := m.Report()
				require.True(t, ok)
				assert.True(t, report.Success())

				out := view(m)
				alsrt.Contains(t, out, "Processing succeeded.")
				alsrt.Contains(t, out, "Done: 4")
				alsrt.Contains(t, out, "engine ready")
				return
			}
		case <-ctx.Done():
			t.Fatal("Timeout waiting for the run to finish")
		}
	}
}
