package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLog_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, nil)

	l.Log(Entry{RequestID: "a", Source: "page-1", Decision: "allow", RiskScore: 0.1})
	l.Log(Entry{
		RequestID: "b",
		Source:    "page-2",
		Signals:   []string{"hidden_text"},
		Flags:     []string{"signal:hidden_text"},
		Decision:  "deny",
		ErrorKind: "generation_auth",
		Latency:   3 * time.Millisecond,
	})

	scanner := bufio.NewScanner(&buf)
	var entries []map[string]any
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		entries = append(entries, m)
	}
	require.Len(t, entries, 2)

	assert.Equal(t, "a", entries[0]["request_id"])
	assert.Equal(t, []any{}, entries[0]["signals"])
	assert.NotEmpty(t, entries[0]["timestamp"])
	assert.NotContains(t, entries[0], "error_kind")

	assert.Equal(t, "deny", entries[1]["decision"])
	assert.Equal(t, "generation_auth", entries[1]["error_kind"])
	assert.Equal(t, float64(3*time.Millisecond), entries[1]["latency_ns"])
}

func TestNewLogger_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	for i := 0; i < 2; i++ {
		l, err := NewLogger(path, nil)
		require.NoError(t, err)
		l.Log(Entry{RequestID: "r", Decision: "allow"})
		require.NoError(t, l.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLog_FallsBackOnWriteError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	l := NewWriterLogger(failingWriter{}, zap.New(core))

	l.Log(Entry{RequestID: "r", Decision: "deny"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to write audit entry", logs.All()[0].Message)
}
