package types

import "strings"

// TaskStatus is the processing state of a FileTask. Tokens reported by an
// engine this build does not recognise are kept through ReportedStatus so
// they can still be displayed.
type TaskStatus string

// reportedPrefix marks a status carrying an unrecognised engine token. None of
// the known statuses starts with it, so no token can turn into one of them.
const reportedPrefix = "engine:"

const (
	StatusPending      TaskStatus = "pending"
	StatusProcessing   TaskStatus = "processing"
	StatusSuccess      TaskStatus = "success"
	StatusFailure      TaskStatus = "failure"
	StatusSkipped      TaskStatus = "skipped"
	StatusUnrecognized TaskStatus = "unrecognized"
	// StatusCancelled is never reported by the engine. It is assigned to tasks
	// still processing when the operator cancels a run.
	StatusCancelled TaskStatus = "cancelled"
)

var statusLabels = map[TaskStatus]string{
	StatusPending:      "Pending",
	StatusProcessing:   "Processing...",
	StatusSuccess:      "Done",
	StatusFailure:      "Failed",
	StatusSkipped:      "Skipped",
	StatusUnrecognized: "Unknown platform",
	StatusCancelled:    "Cancelled",
}

// ReportedStatus keeps an engine token outside the known set
func ReportedStatus(token string) TaskStatus {
	return TaskStatus(reportedPrefix + token)
}

// Known reports whether s is one of the statuses defined above.
func (s TaskStatus) Known() bool {
	_, ok := statusLabels[s]
	return ok
}

// Terminal reports whether a task in this status will not change again during
// the current run.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusSkipped, StatusUnrecognized, StatusCancelled:
		return true
	default:
		return false
	}
}

// Token returns the engine token of a reported status, or false for the
// statuses defined above.
func (s TaskStatus) Token() (string, bool) {
	return strings.CutPrefix(string(s), reportedPrefix)
}

// Label returns the display text for the status. Reported tokens are shown as
// the engine sent them.
func (s TaskStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	if token, ok := s.Token(); ok {
		return token
	}
	return string(s)
}
