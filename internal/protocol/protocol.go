// Package protocol encodes the task list sent to the engine and decodes the
// status lines it reports back.
//
// The engine reads one absolute path per line on stdin. On stdout it
// interleaves free form log text with status lines of the form
//
//	##STATUS##|<path>|<TOKEN>|<message>
//
// Fields after the fourth are ignored, so a message cannot contain '|'.
package protocol

import (
	"bufio"
	"io"
	"strings"

	"salesdesk/internal/errors"
	"salesdesk/pkg/types"
)

const (
	// Sentinel opens every status line
	Sentinel = "##STATUS##"
	// Separator splits the fields of a status line
	Separator = "|"
	// ErrorMarker prefixes engine stderr lines in the log
	ErrorMarker = "[ERROR]: "

	minFields = 4
)

var tokens = map[string]types.TaskStatus{
	"PROCESSING":   types.StatusProcessing,
	"SUCCESS":      types.StatusSuccess,
	"FAILURE":      types.StatusFailure,
	"SKIPPED":      types.StatusSkipped,
	"UNIDENTIFIED": types.StatusUnrecognized,
}

// MapToken converts a wire token to a status. Unknown tokens are kept as a
// reported status.
func MapToken(token string) types.TaskStatus {
	if status, ok := tokens[token]; ok {
		return status
	}
	return types.ReportedStatus(token)
}

// Token returns the wire token for a status reported by the engine
func Token(status types.TaskStatus) (string, bool) {
	for token, s := range tokens {
		if s == status {
			return token, true
		}
	}
	return "", false
}

// Update is one decoded status line
type Update struct {
	Path    string
	Token   string
	Status  types.TaskStatus
	Message string
}

// Kind classifies a decoded line
type Kind int

const (
	// KindPlain is free form log text
	KindPlain Kind = iota
	// KindUpdate is a well formed status line
	KindUpdate
	// KindMalformed starts with the sentinel but has too few fields. It is
	// shown as plain text.
	KindMalformed
)

// Line is a stdout line after decoding
type Line struct {
	Kind   Kind
	Text   string
	Update Update
}

// Err returns the protocol error of a malformed line, nil otherwise
func (l Line) Err() error {
	if l.Kind != KindMalformed {
		return nil
	}
	return errors.NewProtocolError(l.Text)
}

// Decode classifies a single line without its terminator
func Decode(line string) Line {
	if !strings.HasPrefix(line, Sentinel+Separator) {
		return Line{Kind: KindPlain, Text: line}
	}
	parts := strings.Split(line, Separator)
	if len(parts) < minFields {
		return Line{Kind: KindMalformed, Text: line}
	}
	return Line{
		Kind: KindUpdate,
		Text: line,
		Update: Update{
			Path:    parts[1],
			Token:   parts[2],
			Status:  MapToken(parts[2]),
			Message: parts[3],
		},
	}
}

// Format renders an update as a status line
func Format(path, token, message string) string {
	return strings.Join([]string{Sentinel, path, token, message}, Separator)
}

// EncodeTasks writes one path per line to w
func EncodeTasks(w io.Writer, paths []string) error {
	bw := bufio.NewWriter(w)
	for _, p := range paths {
		if _, err := bw.WriteString(p); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// MarkError prefixes a stderr line for the log
func MarkError(line string) string {
	return ErrorMarker + line
}
