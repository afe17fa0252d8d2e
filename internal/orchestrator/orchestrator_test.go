package orchestrator

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"salesdesk/internal/errors"
	"salesdesk/pkg/testutils"
	"salesdesk/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testutils.RunFakeWorkerIfRequested()
	os.Exit(m.Run())
}

type collected struct {
	events []Event
	stdout string
	stderr string
}

func (c collected) outcome() *Outcome {
	return c.events[len(c.events)-1].Outcome
}

func drain(t *testing.T, o *Orchestrator) collected {
	t.Helper()
	var c collected
	timeout := time.After(20 * time.Second)
	for {
		select {
		case ev := <-o.Events():
			c.events = append(c.events, ev)
			switch ev.Type {
			case EventOutput:
				c.stdout += string(ev.Data)
			case EventError:
				c.stderr += string(ev.Data)
			case EventFinished:
				return c
			}
		case <-timeout:
			t.Fatal("timed out waiting for engine to finish")
		}
	}
}

func fakeOptions(t *testing.T, mode string) Options {
	return Options{
		Engine: testutils.FakeEngine(t),
		Policy: types.ConflictSkip,
		Env:    testutils.FakeWorkerEnviron(mode),
	}
}

func waitForState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return o.State() == want }, 5*time.Second, 5*time.Millisecond)
}

func TestStartSuccess(t *testing.T) {
	o := New()
	paths := []string{"/d/a.csv", "/d/销售.xlsx"}

	require.NoError(t, o.Start(paths, fakeOptions(t, testutils.WorkerSuccess)))
	c := drain(t, o)

	assert.Equal(t, EventStarted, c.events[0].Type)
	out := c.outcome()
	require.NotNil(t, out)
	assert.True(t, out.Success())
	assert.Equal(t, ExitNormal, out.Reason)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "success", out.Label())
	assert.Contains(t, c.stdout, "##STATUS##|/d/a.csv|SUCCESS|written")
	assert.Contains(t, c.stdout, "##STATUS##|/d/销售.xlsx|SUCCESS|written")
	assert.Empty(t, c.stderr)

	for _, ev := range c.events {
		assert.Equal(t, out.SessionID, ev.SessionID)
	}

	s, ok := o.Session()
	require.True(t, ok)
	assert.Equal(t, StateFinished, s.State)
	assert.Equal(t, paths, s.PendingTaskPaths)
	assert.Equal(t, 0, s.ExitCode)
	assert.Equal(t, StateFinished, o.State())

	require.NoError(t, o.Reset())
	assert.Equal(t, StateIdle, o.State())
}

func TestStartPreconditions(t *testing.T) {
	o := New()

	err := o.Start(nil, fakeOptions(t, testutils.WorkerSuccess))
	assert.True(t, errors.IsEmptyTaskSet(err))
	assert.Equal(t, StateIdle, o.State())
	_, ok := o.Session()
	assert.False(t, ok)

	require.NoError(t, o.Start([]string{"/d/a.csv"}, fakeOptions(t, testutils.WorkerHang)))
	waitForState(t, o, StateRunning)

	assert.True(t, errors.IsAlreadyRunning(o.Start([]string{"/d/b.csv"}, fakeOptions(t, testutils.WorkerSuccess))))
	assert.True(t, errors.IsAlreadyRunning(o.Start(nil, fakeOptions(t, testutils.WorkerSuccess))))
	assert.True(t, errors.IsAlreadyRunning(o.StartDirectory("/in", "/out", fakeOptions(t, testutils.WorkerSuccess))))

	require.NoError(t, o.Cancel())
	drain(t, o)
	require.NoError(t, o.Reset())
}

func TestCancel(t *testing.T) {
	o := New()
	assert.True(t, errors.IsNotRunning(o.Cancel()))

	require.NoError(t, o.Start([]string{"/d/a.csv", "/d/b.csv"}, fakeOptions(t, testutils.WorkerHang)))
	waitForState(t, o, StateRunning)

	require.NoError(t, o.Cancel())
	assert.True(t, errors.IsNotRunning(o.Cancel()))

	c := drain(t, o)
	out := c.outcome()
	assert.Equal(t, ExitCrashed, out.Reason)
	assert.True(t, out.CancelRequested)
	assert.False(t, out.Success())
	assert.Equal(t, "cancelled by user", out.Label())

	s, _ := o.Session()
	assert.True(t, s.CancelRequested)
	assert.Equal(t, ExitCrashed, s.ExitReason)
}

func TestBackendFailure(t *testing.T) {
	o := New()
	require.NoError(t, o.Start([]string{"/d/a.csv"}, fakeOptions(t, testutils.WorkerFail)))

	c := drain(t, o)
	out := c.outcome()
	assert.Equal(t, ExitNormal, out.Reason)
	assert.Equal(t, 3, out.ExitCode)
	assert.False(t, out.Success())
	assert.False(t, out.CancelRequested)
	assert.Equal(t, "failed with exit code 3", out.Label())
	assert.Contains(t, c.stderr, "ValueError: boom")
}

func TestFailedToStart(t *testing.T) {
	t.Run("missing executable", func(t *testing.T) {
		o := New()
		engine := filepath.Join(t.TempDir(), "backend_engine", "backend_engine")
		require.NoError(t, o.Start([]string{"/d/a.csv"}, Options{Engine: engine}))

		c := drain(t, o)
		require.Len(t, c.events, 1)
		out := c.outcome()
		assert.Equal(t, ExitFailedToStart, out.Reason)
		assert.Equal(t, "failed to start", out.Label())
		require.True(t, errors.IsFailedToStart(out.Err))

		var runErr *errors.RunError
		require.True(t, errors.As(out.Err, &runErr))
		assert.Equal(t, errors.MissingExecutable, runErr.StartFailure())
		assert.Contains(t, runErr.Remediation(), engine)

		require.NoError(t, o.Reset())
		assert.Equal(t, StateIdle, o.State())
	})

	t.Run("not executable", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Getuid() == 0 {
			t.Skip("permission bits not enforced")
		}
		engine := filepath.Join(t.TempDir(), "engine")
		require.NoError(t, os.WriteFile(engine, []byte("#!/bin/sh\n"), 0644))

		o := New()
		require.NoError(t, o.Start([]string{"/d/a.csv"}, Options{Engine: engine}))
		out := drain(t, o).outcome()

		var runErr *errors.RunError
		require.True(t, errors.As(out.Err, &runErr))
		assert.Equal(t, errors.PermissionDenied, runErr.StartFailure())
	})
}

func TestArgumentsAndEnvironment(t *testing.T) {
	t.Run("task list form", func(t *testing.T) {
		o := New()
		opts := fakeOptions(t, testutils.WorkerArgs)
		opts.Policy = types.ConflictRename
		opts.OutputDir = "/out dir"
		require.NoError(t, o.Start([]string{"/d/a.csv"}, opts))

		c := drain(t, o)
		assert.Equal(t, "arg:--on-conflict\narg:rename\narg:--output-dir\narg:/out dir\nenv:utf-8\n",
			strings.ReplaceAll(c.stdout, "\r\n", "\n"))
	})

	t.Run("output to source omits output dir", func(t *testing.T) {
		o := New()
		require.NoError(t, o.Start([]string{"/d/a.csv"}, fakeOptions(t, testutils.WorkerArgs)))

		c := drain(t, o)
		assert.NotContains(t, c.stdout, "--output-dir")
		assert.Contains(t, c.stdout, "arg:skip")
	})

	t.Run("env override wins", func(t *testing.T) {
		o := New()
		opts := fakeOptions(t, testutils.WorkerArgs)
		opts.Env = append(opts.Env, "PYTHONIOENCODING=gbk")
		require.NoError(t, o.Start([]string{"/d/a.csv"}, opts))

		c := drain(t, o)
		assert.Contains(t, c.stdout, "env:gbk")
	})

	t.Run("directory form", func(t *testing.T) {
		o := New()
		opts := fakeOptions(t, testutils.WorkerArgs)
		opts.Policy = types.ConflictOverwrite
		require.NoError(t, o.StartDirectory("/in", "/out", opts))

		c := drain(t, o)
		assert.Equal(t, "arg:/in\narg:/out\narg:--on-conflict\narg:overwrite\nenv:utf-8\n",
			strings.ReplaceAll(c.stdout, "\r\n", "\n"))
		s, _ := o.Session()
		assert.Empty(t, s.PendingTaskPaths)
	})
}

func TestSequentialSessions(t *testing.T) {
	o := New()
	var ids []string
	for i := 0; i < 3; i++ {
		require.NoError(t, o.Start([]string{"/d/a.csv"}, fakeOptions(t, testutils.WorkerSuccess)))
		out := drain(t, o).outcome()
		ids = append(ids, out.SessionID)
		require.NoError(t, o.Reset())
	}
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])
}

func TestResetWhileRunning(t *testing.T) {
	o := New()
	require.NoError(t, o.Start([]string{"/d/a.csv"}, fakeOptions(t, testutils.WorkerHang)))
	waitForState(t, o, StateRunning)

	err := o.Reset()
	require.Error(t, err)
	assert.Equal(t, errors.InvalidOperation, errors.KindOf(err))

	require.NoError(t, o.Cancel())
	drain(t, o)
}

func TestClassifyExit(t *testing.T) {
	out := classifyExit(nil, false)
	assert.Equal(t, ExitCrashed, out.Reason)
	assert.Equal(t, -1, out.ExitCode)
	assert.Equal(t, "abnormal exit", out.Label())
}

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(entries)
}

func TestPipesReleasedOnError(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("counts descriptors through /proc")
	}

	cmd := exec.Command(testutils.FakeEngine(t))
	cmd.Stderr = &bytes.Buffer{}

	before := openFDs(t)
	stdin, stdout, stderr, err := pipes(cmd)
	require.Error(t, err)
	assert.Nil(t, stdin)
	assert.Nil(t, stdout)
	assert.Nil(t, stderr)

	// Only the child ends of stdin and stdout stay open, held by cmd until
	// it is started or collected
	assert.LessOrEqual(t, openFDs(t)-before, 2)
}
