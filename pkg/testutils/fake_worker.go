package testutils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// FakeWorkerEnv selects the behaviour of a re-executed test binary acting as
// the engine.
const FakeWorkerEnv = "SALESDESK_FAKE_WORKER"

// Fake worker modes
const (
	// WorkerSuccess reports PROCESSING then SUCCESS for every path and exits 0
	WorkerSuccess = "success"
	// WorkerMixed reports a different terminal token per path, cycling through
	// SUCCESS, FAILURE, SKIPPED, UNIDENTIFIED and an unknown token
	WorkerMixed = "mixed"
	// WorkerFail writes to stderr and exits 3
	WorkerFail = "fail"
	// WorkerHang reports PROCESSING for every path and then blocks until killed
	WorkerHang = "hang"
	// WorkerArgs echoes its arguments and encoding variable, one per line
	WorkerArgs = "args"
	// WorkerTrickle writes its status lines one byte at a time and leaves the
	// last line unterminated
	WorkerTrickle = "trickle"
)

// RunFakeWorkerIfRequested turns the current process into the fake engine
// when FakeWorkerEnv is set. Call it first thing in TestMain.
func RunFakeWorkerIfRequested() {
	mode := os.Getenv(FakeWorkerEnv)
	if mode == "" {
		return
	}
	os.Exit(fakeWorker(mode, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// FakeEngine returns the path of the running test binary
func FakeEngine(t testing.TB) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return exe
}

// FakeWorkerEnviron returns the env entry selecting mode
func FakeWorkerEnviron(mode string) []string {
	return []string{FakeWorkerEnv + "=" + mode}
}

func readPaths(r io.Reader) []string {
	var paths []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}

func status(w io.Writer, path, token, message string) {
	fmt.Fprintf(w, "##STATUS##|%s|%s|%s\n", path, token, message)
}

func fakeWorker(mode string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	switch mode {
	case WorkerSuccess:
		fmt.Fprintln(stdout, "engine ready")
		for _, p := range readPaths(stdin) {
			status(stdout, p, "PROCESSING", "")
			status(stdout, p, "SUCCESS", "written")
		}
		fmt.Fprintln(stdout, "all done")
		return 0

	case WorkerMixed:
		tokens := []string{"SUCCESS", "FAILURE", "SKIPPED", "UNIDENTIFIED", "WEIRD"}
		for i, p := range readPaths(stdin) {
			status(stdout, p, "PROCESSING", "")
			status(stdout, p, tokens[i%len(tokens)], fmt.Sprintf("result %d", i))
		}
		status(stdout, "/not/in/list.csv", "SUCCESS", "stray")
		fmt.Fprintln(stdout, "##STATUS##|broken")
		return 0

	case WorkerFail:
		readPaths(stdin)
		fmt.Fprintln(stderr, "Traceback (most recent call last):")
		fmt.Fprintln(stderr, "ValueError: boom")
		return 3

	case WorkerHang:
		for _, p := range readPaths(stdin) {
			status(stdout, p, "PROCESSING", "")
		}
		time.Sleep(time.Minute)
		return 0

	case WorkerArgs:
		readPaths(stdin)
		for _, a := range args {
			fmt.Fprintln(stdout, "arg:"+a)
		}
		fmt.Fprintln(stdout, "env:"+os.Getenv("PYTHONIOENCODING"))
		return 0

	case WorkerTrickle:
		paths := readPaths(stdin)
		var sb strings.Builder
		for _, p := range paths {
			fmt.Fprintf(&sb, "##STATUS##|%s|SUCCESS|ok\r\n", p)
		}
		sb.WriteString("tail without newline")
		for _, b := range []byte(sb.String()) {
			stdout.Write([]byte{b})
		}
		return 0

	default:
		fmt.Fprintf(stderr, "unknown fake worker mode %q\n", mode)
		return 2
	}
}
