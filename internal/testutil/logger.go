package testutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// LogRecorder collects JSON log lines written by a test logger.
type LogRecorder struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer. Safe for concurrent use.
func (r *LogRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

// Records returns every logged record decoded as a map.
func (r *LogRecorder) Records() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(r.buf.String(), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err == nil {
			out = append(out, rec)
		}
	}
	return out
}

// Messages returns the msg field of every record, in order.
func (r *LogRecorder) Messages() []string {
	var out []string
	for _, rec := range r.Records() {
		if m, ok := rec[slog.MessageKey].(string); ok {
			out = append(out, m)
		}
	}
	return out
}

// Has reports whether any record carries msg.
func (r *LogRecorder) Has(msg string) bool {
	for _, m := range r.Messages() {
		if m == msg {
			return true
		}
	}
	return false
}

// NewTestLogger returns a debug-level JSON logger and its recorder.
func NewTestLogger() (*slog.Logger, *LogRecorder) {
	rec := &LogRecorder{}
	h := slog.NewJSONHandler(rec, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), rec
}
