package types

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// FileTask is one entry of the task list: a data file plus its selection and
// processing state.
type FileTask struct {
	Path     string     `json:"path"`
	Selected bool       `json:"selected"`
	Status   TaskStatus `json:"status"`
	Message  string     `json:"message,omitempty"`
}

// NewFileTask returns a selected, pending task for path.
func NewFileTask(path string) FileTask {
	return FileTask{
		Path:     path,
		Selected: true,
		Status:   StatusPending,
	}
}

// Name returns the base name of the file
func (f *FileTask) Name() string {
	return filepath.Base(f.Path)
}

// ToJSON converts FileTask to JSON string
func (f *FileTask) ToJSON() string {
	jsonBytes, _ := json.Marshal(f)
	return string(jsonBytes)
}

// String returns a human-readable representation
func (f *FileTask) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("File: %s\n", f.Path))
	sb.WriteString(fmt.Sprintf("Status: %s\n", f.Status.Label()))
	if f.Message != "" {
		sb.WriteString(fmt.Sprintf("Message: %s\n", f.Message))
	}
	return sb.String()
}
