package batch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"salesdesk/internal/errors"
	"salesdesk/internal/orchestrator"
	"salesdesk/pkg/types"
)

// ReportKind classifies how a run ended
type ReportKind int

const (
	ReportSuccess ReportKind = iota
	ReportBackendFailure
	ReportCancelled
	ReportAbnormalExit
	ReportFailedToStart
)

func (k ReportKind) String() string {
	switch k {
	case ReportSuccess:
		return "success"
	case ReportBackendFailure:
		return "backend_failure"
	case ReportCancelled:
		return "cancelled"
	case ReportAbnormalExit:
		return "abnormal_exit"
	case ReportFailedToStart:
		return "failed_to_start"
	default:
		return fmt.Sprintf("report(%d)", int(k))
	}
}

// Report summarises a finished run for the front end
type Report struct {
	Kind      ReportKind
	SessionID string
	ExitCode  int
	// Stderr is everything the engine wrote to stderr
	Stderr   string
	Duration time.Duration
	Counts   map[types.TaskStatus]int
	// Err is nil on success
	Err error
}

// Success reports whether the engine finished with exit code 0
func (r Report) Success() bool {
	return r.Kind == ReportSuccess
}

// Remediation returns the operator hint of a launch failure
func (r Report) Remediation() string {
	var runErr *errors.RunError
	if errors.As(r.Err, &runErr) {
		return runErr.Remediation()
	}
	return ""
}

// Message is the one line status shown after a run
func (r Report) Message() string {
	switch r.Kind {
	case ReportSuccess:
		return "Processing succeeded."
	case ReportBackendFailure:
		return fmt.Sprintf("Processing failed with exit code %d. See the log for details.", r.ExitCode)
	case ReportCancelled:
		return "Processing cancelled by user."
	case ReportAbnormalExit:
		return "The engine exited abnormally. See the log for details."
	case ReportFailedToStart:
		return r.Remediation()
	default:
		return r.Kind.String()
	}
}

// Banner is the log line closing a run
func (r Report) Banner() string {
	switch r.Kind {
	case ReportSuccess:
		return "--- Processing succeeded ---"
	case ReportCancelled:
		return "--- Processing cancelled ---"
	case ReportFailedToStart:
		return "--- Engine failed to start ---"
	default:
		return "--- Processing failed ---"
	}
}

// Summary renders the per status counts, e.g. "Done: 3, Failed: 1"
func (r Report) Summary() string {
	if len(r.Counts) == 0 {
		return ""
	}
	statuses := make([]types.TaskStatus, 0, len(r.Counts))
	for s := range r.Counts {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, fmt.Sprintf("%s: %d", s.Label(), r.Counts[s]))
	}
	return strings.Join(parts, ", ")
}

func newReport(out orchestrator.Outcome, stderr string, counts map[types.TaskStatus]int) Report {
	r := Report{
		SessionID: out.SessionID,
		ExitCode:  out.ExitCode,
		Stderr:    stderr,
		Duration:  out.Duration,
		Counts:    counts,
	}
	switch {
	case out.Reason == orchestrator.ExitFailedToStart:
		r.Kind = ReportFailedToStart
		r.Err = out.Err
	case out.Reason == orchestrator.ExitCrashed && out.CancelRequested:
		r.Kind = ReportCancelled
		r.Err = errors.ErrCancelled
	case out.Reason == orchestrator.ExitCrashed:
		r.Kind = ReportAbnormalExit
		r.Err = errors.NewRunError("engine exited abnormally", errors.BackendFailure, nil)
	case out.ExitCode == 0:
		r.Kind = ReportSuccess
	default:
		r.Kind = ReportBackendFailure
		r.Err = errors.NewBackendFailure(out.ExitCode, stderr)
	}
	return r
}
