package protocol

import (
	"bytes"
	"testing"

	"salesdesk/internal/errors"
	"salesdesk/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapToken(t *testing.T) {
	tests := []struct {
		token string
		want  types.TaskStatus
	}{
		{"PROCESSING", types.StatusProcessing},
		{"SUCCESS", types.StatusSuccess},
		{"FAILURE", types.StatusFailure},
		{"SKIPPED", types.StatusSkipped},
		{"UNIDENTIFIED", types.StatusUnrecognized},
		{"RETRYING", types.ReportedStatus("RETRYING")},
		{"success", types.ReportedStatus("success")},
		{"processing", types.ReportedStatus("processing")},
		{"cancelled", types.ReportedStatus("cancelled")},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, MapToken(tt.token))
		})
	}

	// Lowercase spellings of internal statuses stay engine tokens
	for _, token := range []string{"success", "processing", "cancelled", "pending"} {
		status := MapToken(token)
		assert.False(t, status.Known(), token)
		assert.False(t, status.Terminal(), token)
		assert.Equal(t, token, status.Label())
		assert.NotEqual(t, types.StatusProcessing, status)
	}

	token, ok := Token(types.StatusSkipped)
	assert.True(t, ok)
	assert.Equal(t, "SKIPPED", token)
	_, ok = Token(types.StatusCancelled)
	assert.False(t, ok)
}

func TestDecode(t *testing.T) {
	t.Run("status line", func(t *testing.T) {
		l := Decode("##STATUS##|/d/a.csv|SUCCESS|Done")
		require.Equal(t, KindUpdate, l.Kind)
		assert.Equal(t, Update{Path: "/d/a.csv", Token: "SUCCESS", Status: types.StatusSuccess, Message: "Done"}, l.Update)
		assert.NoError(t, l.Err())
	})

	t.Run("extra fields ignored", func(t *testing.T) {
		l := Decode("##STATUS##|/d/a.csv|FAILURE|bad header|col 3")
		require.Equal(t, KindUpdate, l.Kind)
		assert.Equal(t, "bad header", l.Update.Message)
	})

	t.Run("empty message", func(t *testing.T) {
		l := Decode("##STATUS##|/d/a.csv|PROCESSING|")
		require.Equal(t, KindUpdate, l.Kind)
		assert.Empty(t, l.Update.Message)
	})

	t.Run("too few fields", func(t *testing.T) {
		l := Decode("##STATUS##|/d/a.csv|SUCCESS")
		assert.Equal(t, KindMalformed, l.Kind)
		assert.Equal(t, "##STATUS##|/d/a.csv|SUCCESS", l.Text)
		assert.Equal(t, errors.MalformedProtocolLine, errors.KindOf(l.Err()))
	})

	t.Run("plain text", func(t *testing.T) {
		for _, line := range []string{"loading workbook", "##STATUS##", " ##STATUS##|a|b|c"} {
			l := Decode(line)
			assert.Equal(t, KindPlain, l.Kind, line)
			assert.Equal(t, line, l.Text)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		l := Decode(Format("/d/b.xlsx", "UNIDENTIFIED", "no platform"))
		assert.Equal(t, types.StatusUnrecognized, l.Update.Status)
		assert.Equal(t, "no platform", l.Update.Message)
	})
}

func TestSplitter(t *testing.T) {
	t.Run("partial lines are buffered", func(t *testing.T) {
		var s Splitter
		assert.Empty(t, s.Feed([]byte("##STATUS##|/d/a.c")))
		assert.True(t, s.Pending())
		assert.Equal(t, []string{"##STATUS##|/d/a.csv|SUCCESS|ok"}, s.Feed([]byte("sv|SUCCESS|ok\nnext")))
		assert.Equal(t, []string{"next"}, s.Flush())
		assert.False(t, s.Pending())
		assert.Empty(t, s.Flush())
	})

	t.Run("crlf and empty lines", func(t *testing.T) {
		var s Splitter
		assert.Equal(t, []string{"a", "b"}, s.Feed([]byte("a\r\n\r\n\nb\n")))
	})

	t.Run("invalid utf8 is replaced", func(t *testing.T) {
		var s Splitter
		lines := s.Feed([]byte{'x', 0xff, '\n'})
		require.Len(t, lines, 1)
		assert.Equal(t, "x�", lines[0])
	})
}

func TestSplitterChunkingIndependence(t *testing.T) {
	input := []byte("log one\r\n##STATUS##|/d/a.csv|PROCESSING|\n\n##STATUS##|/d/a.csv|SUCCESS|完成\nlog two\n##STATUS##|/d/b.csv|FAIL")

	var whole Splitter
	want := append(whole.Feed(input), whole.Flush()...)
	require.Equal(t, []string{
		"log one",
		"##STATUS##|/d/a.csv|PROCESSING|",
		"##STATUS##|/d/a.csv|SUCCESS|完成",
		"log two",
		"##STATUS##|/d/b.csv|FAIL",
	}, want)

	for size := 1; size <= len(input); size++ {
		var s Splitter
		var got []string
		for start := 0; start < len(input); start += size {
			end := min(start+size, len(input))
			got = append(got, s.Feed(input[start:end])...)
		}
		got = append(got, s.Flush()...)
		assert.Equal(t, want, got, "chunk size %d", size)
	}
}

func TestDecoder(t *testing.T) {
	var d Decoder
	lines := d.Feed([]byte("hello\n##STATUS##|/d/a.csv|SKIPPED|exists\n##STATUS##|/d/b"))
	require.Len(t, lines, 2)
	assert.Equal(t, KindPlain, lines[0].Kind)
	assert.Equal(t, KindUpdate, lines[1].Kind)
	assert.Equal(t, types.StatusSkipped, lines[1].Update.Status)

	tail := d.Flush()
	require.Len(t, tail, 1)
	assert.Equal(t, KindMalformed, tail[0].Kind)
	assert.Nil(t, d.Flush())
}

func TestEncodeTasks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeTasks(&buf, []string{"/d/销售.csv", "/d/b.xlsx"}))
	assert.Equal(t, "/d/销售.csv\n/d/b.xlsx\n", buf.String())

	buf.Reset()
	require.NoError(t, EncodeTasks(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestMarkError(t *testing.T) {
	assert.Equal(t, "[ERROR]: Traceback", MarkError("Traceback"))
}
