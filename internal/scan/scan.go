// Package scan finds the data files a run can process.
package scan

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salesdesk/internal/errors"
	"salesdesk/internal/log"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gobwas/glob"
)

// DefaultPattern matches the lowercased names of processable files.
const DefaultPattern = "*.{csv,xlsx}"

// Scanner enumerates eligible files
type Scanner struct {
	pattern string
	filter  glob.Glob
}

// New returns a scanner for DefaultPattern
func New() *Scanner {
	s, err := NewWithPattern(DefaultPattern)
	if err != nil {
		panic(err)
	}
	return s
}

// NewWithPattern returns a scanner matching the lowercased file name against
// pattern
func NewWithPattern(pattern string) (*Scanner, error) {
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid file pattern %q", pattern)
	}
	return &Scanner{pattern: pattern, filter: g}, nil
}

// Pattern returns the pattern the scanner was built with
func (s *Scanner) Pattern() string {
	return s.pattern
}

// Eligible reports whether the file name of path passes the filter. The file
// itself is not inspected.
func (s *Scanner) Eligible(path string) bool {
	return s.filter.Match(strings.ToLower(filepath.Base(path)))
}

// Scan yields every eligible regular file below root in lexical order. The
// walk happens lazily on each iteration. A missing root yields nothing;
// unreadable directories are skipped.
func (s *Scanner) Scan(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if root == "" {
			return
		}
		root := filepath.Clean(root)
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			log.LogWithFields(log.F("root", root)).Debug("Scan root is not a readable directory")
			return
		}

		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				log.LogWithFields(log.F("path", path), log.F("error", walkErr.Error())).Debug("Skipping unreadable entry")
				if d != nil && d.IsDir() && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if !s.Eligible(path) {
				return nil
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// Expand resolves dropped or picked paths: directories are scanned
// recursively, eligible files pass through and everything else is dropped.
// Relative paths are made absolute.
func (s *Scanner) Expand(paths ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, p := range paths {
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
			info, err := os.Stat(p)
			if err != nil {
				log.LogWithFields(log.F("path", p)).Debug("Dropping missing path")
				continue
			}
			if info.IsDir() {
				for f := range s.Scan(p) {
					if !yield(f) {
						return
					}
				}
				continue
			}
			if !info.Mode().IsRegular() || !s.Eligible(p) {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Collect drains seq into a slice
func Collect(seq iter.Seq[string]) []string {
	var out []string
	for p := range seq {
		out = append(out, p)
	}
	return out
}

// Entry describes one file for listings
type Entry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	MimeType string    `json:"mime_type"`
	ModTime  time.Time `json:"mod_time"`
}

// HumanSize returns the size in human units
func (e Entry) HumanSize() string {
	return humanize.Bytes(uint64(e.Size))
}

// String returns a single listing line
func (e Entry) String() string {
	return fmt.Sprintf("%8s  %-28s  %s", e.HumanSize(), e.MimeType, e.Path)
}

// ToJSON converts the entry to a JSON string
func (e Entry) ToJSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// Inspect stats path and sniffs its content type
func Inspect(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, errors.NewFileError("file not found", path, errors.FileNotFound, err)
		}
		return Entry{}, errors.NewFileError("cannot stat file", path, errors.FileAccessDenied, err)
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return Entry{}, errors.NewFileError("failed to detect MIME type", path, errors.FileAccessDenied, err)
	}

	return Entry{
		Path:     path,
		Size:     info.Size(),
		MimeType: mime.String(),
		ModTime:  info.ModTime(),
	}, nil
}
