// Package watch notices changes below the input directory so the task list
// can be refreshed without the operator pressing rescan.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"salesdesk/internal/log"

	"github.com/fsnotify/fsnotify"
)

// DefaultCoalesce is the quiet period before a batch of events is reported
const DefaultCoalesce = 500 * time.Millisecond

// Change is a coalesced batch of relevant file system events
type Change struct {
	Paths     []string
	Timestamp time.Time
}

// Watcher monitors directory trees for changes to eligible files using fsnotify
type Watcher struct {
	// Directories being watched
	directories []string

	// Reports whether a file name is relevant
	filter func(path string) bool

	// Quiet period before a change is reported
	coalesce time.Duration

	// Channel to receive coalesced changes
	changeChan chan Change

	// Channel to signal stop
	stopChan chan struct{}

	// fsnotify watcher instance
	fsWatcher *fsnotify.Watcher

	mutex   sync.RWMutex
	running bool
	stopped bool
}

// New creates a new watcher. filter may be nil to report every file.
func New(filter func(path string) bool, coalesce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if coalesce <= 0 {
		coalesce = DefaultCoalesce
	}
	if filter == nil {
		filter = func(string) bool { return true }
	}

	return &Watcher{
		directories: []string{},
		filter:      filter,
		coalesce:    coalesce,
		changeChan:  make(chan Change, 1),
		stopChan:    make(chan struct{}),
		fsWatcher:   fsWatcher,
	}, nil
}

// AddTree watches root and every directory below it
func (w *Watcher) AddTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("error accessing directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			log.LogWithFields(log.F("directory", path), log.F("error", walkErr.Error())).Debug("Not watching unreadable directory")
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		return w.addDirectory(path)
	})
}

func (w *Watcher) addDirectory(dir string) error {
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("failed to add directory %s to watcher: %w", dir, err)
	}

	w.mutex.Lock()
	found := false
	for _, existingDir := range w.directories {
		if existingDir == dir {
			found = true
			break
		}
	}
	if !found {
		w.directories = append(w.directories, dir)
	}
	w.mutex.Unlock()
	log.LogWithFields(log.F("directory", dir)).Debug("Watching directory")
	return nil
}

// Changes returns the channel that delivers coalesced changes. It is closed
// by Stop.
func (w *Watcher) Changes() <-chan Change {
	return w.changeChan
}

// relevant reports whether event should trigger a refresh. New directories
// are added to the watch as a side effect.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op.Has(fsnotify.Chmod) && !event.Op.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
		return false
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.AddTree(event.Name); err != nil {
				log.LogWithFields(log.F("directory", event.Name), log.F("error", err.Error())).Warn("Failed to watch new directory")
			}
			// Files copied in together with the directory
			return true
		}
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		// A removed directory takes its files with it; the name alone cannot
		// tell, so a tracked directory counts as relevant.
		w.mutex.RLock()
		for _, dir := range w.directories {
			if dir == event.Name {
				w.mutex.RUnlock()
				return true
			}
		}
		w.mutex.RUnlock()
	}

	return w.filter(event.Name)
}

// Start begins the file watching process using fsnotify
func (w *Watcher) Start() error {
	w.mutex.Lock()
	if w.running {
		w.mutex.Unlock()
		return fmt.Errorf("watcher already running")
	}
	if w.stopped {
		w.mutex.Unlock()
		return fmt.Errorf("watcher already stopped")
	}
	w.running = true
	w.mutex.Unlock()

	go w.loop()

	log.Debug("Watcher started.")
	return nil
}

func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = map[string]struct{}{}
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.coalesce)
			} else {
				timer.Reset(w.coalesce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			change := Change{Timestamp: time.Now()}
			for p := range pending {
				change.Paths = append(change.Paths, p)
			}
			sort.Strings(change.Paths)
			pending = map[string]struct{}{}

			// A change already queued covers this one
			select {
			case w.changeChan <- change:
			default:
				log.LogWithFields(log.F("paths", len(change.Paths))).Debug("Change already pending, coalesced")
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.LogWithFields(log.F("error", err)).Error("fsnotify watcher error")

		case <-w.stopChan:
			return
		}
	}
}

// Stop halts the file watching process
func (w *Watcher) Stop() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true

	close(w.stopChan)

	if err := w.fsWatcher.Close(); err != nil {
		log.LogWithFields(log.F("error", err)).Error("Error closing fsnotify watcher")
	}

	w.running = false
	close(w.changeChan)

	log.Debug("Watcher stopped.")
}

// IsRunning returns whether the watcher is currently active
func (w *Watcher) IsRunning() bool {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.running
}

// GetDirectories returns the list of directories being watched
func (w *Watcher) GetDirectories() []string {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	dirsCopy := make([]string, len(w.directories))
	copy(dirsCopy, w.directories)
	return dirsCopy
}

// Follow calls onChange for every change until ctx is done or the watcher
// stops
func (w *Watcher) Follow(ctx context.Context, onChange func(Change)) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-w.changeChan:
			if !ok {
				return
			}
			onChange(change)
		}
	}
}
