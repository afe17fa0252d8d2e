package protocol

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Splitter turns a stream of arbitrary chunks into complete lines. A line
// split across chunks is emitted once its newline arrives. Trailing '\r' is
// removed and empty lines are dropped.
type Splitter struct {
	buf []byte
}

// Feed appends chunk and returns the lines it completed
func (s *Splitter) Feed(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		if line := clean(s.buf[:i]); line != "" {
			lines = append(lines, line)
		}
		s.buf = s.buf[i+1:]
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return lines
}

// Flush returns the unterminated tail, if any, and empties the buffer
func (s *Splitter) Flush() []string {
	tail := clean(s.buf)
	s.buf = nil
	if tail == "" {
		return nil
	}
	return []string{tail}
}

// Pending reports whether a partial line is buffered
func (s *Splitter) Pending() bool {
	return len(s.buf) > 0
}

func clean(b []byte) string {
	b = bytes.TrimSuffix(b, []byte{'\r'})
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// Decoder splits stdout chunks into decoded lines
type Decoder struct {
	splitter Splitter
}

// Feed returns the decoded lines completed by chunk
func (d *Decoder) Feed(chunk []byte) []Line {
	return decodeAll(d.splitter.Feed(chunk))
}

// Flush decodes the unterminated tail, if any
func (d *Decoder) Flush() []Line {
	return decodeAll(d.splitter.Flush())
}

func decodeAll(lines []string) []Line {
	if len(lines) == 0 {
		return nil
	}
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = Decode(l)
	}
	return out
}
