// Package audit writes one JSON line per guardrail invocation.
package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is a structured audit record. It never carries raw page content.
type Entry struct {
	Timestamp      time.Time     `json:"timestamp"`
	RequestID      string        `json:"request_id"`
	User           string        `json:"user,omitempty"`
	Source         string        `json:"source"`
	Degraded       bool          `json:"degraded,omitempty"`
	Signals        []string      `json:"signals"`
	Intent         string        `json:"intent,omitempty"`
	RiskScore      float64       `json:"risk_score"`
	Flags          []string      `json:"flags"`
	Recommendation string        `json:"recommendation,omitempty"`
	Decision       string        `json:"decision"`
	Reason         string        `json:"reason,omitempty"`
	PolicyID       string        `json:"policy_id,omitempty"`
	PolicyVersion  string        `json:"policy_version,omitempty"`
	ReviewID       string        `json:"review_id,omitempty"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	Latency        time.Duration `json:"latency_ns"`
}

// Sink receives audit entries
type Sink interface {
	Log(entry Entry)
}

// Logger handles structured audit logging
type Logger struct {
	mu       sync.Mutex
	closer   io.Closer
	encoder  *json.Encoder
	fallback *zap.Logger
}

// NewLogger creates a file-backed audit logger.
// If filePath is empty, entries go to stdout.
func NewLogger(filePath string, fallback *zap.Logger) (*Logger, error) {
	if filePath == "" {
		return NewWriterLogger(os.Stdout, fallback), nil
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l := NewWriterLogger(file, fallback)
	l.closer = file
	return l, nil
}

// NewWriterLogger writes entries to w. Closing the Logger does not close w.
func NewWriterLogger(w io.Writer, fallback *zap.Logger) *Logger {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return &Logger{
		encoder:  json.NewEncoder(w),
		fallback: fallback,
	}
}

// Log writes an audit entry
func (l *Logger) Log(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Signals == nil {
		entry.Signals = []string{}
	}
	if entry.Flags == nil {
		entry.Flags = []string{}
	}

	if err := l.encoder.Encode(entry); err != nil {
		l.fallback.Error("failed to write audit entry",
			zap.Error(err),
			zap.String("request_id", entry.RequestID),
			zap.String("decision", entry.Decision))
	}
}

// Close closes the audit log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Discard drops every entry
type Discard struct{}

// Log implements Sink
func (Discard) Log(Entry) {}
