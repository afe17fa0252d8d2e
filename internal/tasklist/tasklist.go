// Package tasklist holds the ordered set of files queued for processing.
package tasklist

import (
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"salesdesk/pkg/types"
)

// TaskList is an insertion ordered, path deduplicated list of tasks. It is
// safe for concurrent use.
type TaskList struct {
	mu    sync.RWMutex
	tasks []types.FileTask
	index map[string]int
}

// New returns an empty TaskList
func New() *TaskList {
	return &TaskList{index: make(map[string]int)}
}

// pathKey folds path into its identity on the host filesystem.
func pathKey(path string) string {
	p := filepath.Clean(path)
	switch runtime.GOOS {
	case "windows", "darwin":
		return strings.ToLower(p)
	default:
		return p
	}
}

func (l *TaskList) reindex() {
	l.index = make(map[string]int, len(l.tasks))
	for i, t := range l.tasks {
		l.index[pathKey(t.Path)] = i
	}
}

// Add appends a selected, pending task for path. It returns false when the
// path is already listed.
func (l *TaskList) Add(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := pathKey(path)
	if _, ok := l.index[key]; ok {
		return false
	}
	l.index[key] = len(l.tasks)
	l.tasks = append(l.tasks, types.NewFileTask(path))
	return true
}

// Remove deletes every given path and returns how many were removed.
func (l *TaskList) Remove(paths ...string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		key := pathKey(p)
		if _, ok := l.index[key]; ok {
			drop[key] = true
		}
	}
	if len(drop) == 0 {
		return 0
	}

	kept := l.tasks[:0]
	for _, t := range l.tasks {
		if !drop[pathKey(t.Path)] {
			kept = append(kept, t)
		}
	}
	clear(l.tasks[len(kept):])
	l.tasks = kept
	l.reindex()
	return len(drop)
}

// Clear removes all tasks
func (l *TaskList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = nil
	l.index = make(map[string]int)
}

// SetSelection sets the selection flag of path. It returns false for unknown
// paths.
func (l *TaskList) SetSelection(path string, selected bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[pathKey(path)]
	if !ok {
		return false
	}
	l.tasks[i].Selected = selected
	return true
}

// SelectAll selects every task, or deselects every task when all of them were
// already selected. It returns the selection that was applied.
func (l *TaskList) SelectAll() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	target := false
	for _, t := range l.tasks {
		if !t.Selected {
			target = true
			break
		}
	}
	for i := range l.tasks {
		l.tasks[i].Selected = target
	}
	return target
}

// InvertSelection flips the selection flag of every task
func (l *TaskList) InvertSelection() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.tasks {
		l.tasks[i].Selected = !l.tasks[i].Selected
	}
}

// UpdateStatus records a status and message for path. Updates for paths not
// in the list are ignored and report false.
func (l *TaskList) UpdateStatus(path string, status types.TaskStatus, message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[pathKey(path)]
	if !ok {
		return false
	}
	l.tasks[i].Status = status
	l.tasks[i].Message = message
	return true
}

// ResetStatus puts every task back to pending with no message
func (l *TaskList) ResetStatus() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.tasks {
		l.tasks[i].Status = types.StatusPending
		l.tasks[i].Message = ""
	}
}

// SelectedPaths returns the selected paths in list order
func (l *TaskList) SelectedPaths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	paths := make([]string, 0, len(l.tasks))
	for _, t := range l.tasks {
		if t.Selected {
			paths = append(paths, t.Path)
		}
	}
	return paths
}

// PathsWithStatus returns the paths currently in status, in list order
func (l *TaskList) PathsWithStatus(status types.TaskStatus) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var paths []string
	for _, t := range l.tasks {
		if t.Status == status {
			paths = append(paths, t.Path)
		}
	}
	return paths
}

// Len returns the number of tasks
func (l *TaskList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tasks)
}

// Tasks returns a snapshot of the list
func (l *TaskList) Tasks() []types.FileTask {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.FileTask, len(l.tasks))
	copy(out, l.tasks)
	return out
}

// At returns the task at position i
func (l *TaskList) At(i int) (types.FileTask, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i < 0 || i >= len(l.tasks) {
		return types.FileTask{}, false
	}
	return l.tasks[i], true
}

// Get returns the task for path
func (l *TaskList) Get(path string) (types.FileTask, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[pathKey(path)]
	if !ok {
		return types.FileTask{}, false
	}
	return l.tasks[i], true
}

// Counts returns the number of tasks per status
func (l *TaskList) Counts() map[types.TaskStatus]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[types.TaskStatus]int)
	for _, t := range l.tasks {
		counts[t.Status]++
	}
	return counts
}
