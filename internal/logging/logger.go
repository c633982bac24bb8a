// Package logging provides leveled logging and iteration tracing for hagerstrand.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TraceLogger for per-iteration JSONL traces (<dir>/trace.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
)

// LevelTrace is a custom slog level below Debug for full per-iteration output.
const LevelTrace = slog.LevelDebug - 4

// TraceFile is the name of the JSONL file written by TraceLogger.
const TraceFile = "trace.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// traceEntry is one line of trace.jsonl.
type traceEntry struct {
	Time string `json:"time"`
	Run  string `json:"run,omitempty"`
	Mode string `json:"mode"`
	diffusion.Iteration
}

// TraceLogger appends one JSON line per diffusion iteration. It is safe for
// concurrent use, so replicate runs may share one. A nil TraceLogger is safe
// to use; all methods are no-ops on nil receiver.
type TraceLogger struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewTraceLogger creates a trace logger writing to dir/trace.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened.
func NewTraceLogger(dir string, level string) *TraceLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, TraceFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &TraceLogger{file: f, now: time.Now}
}

// LogIteration writes one iteration record. Safe to call on nil receiver.
func (tl *TraceLogger) LogIteration(run string, mode diffusion.Mode, it diffusion.Iteration) {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file == nil {
		return
	}

	data, err := json.Marshal(traceEntry{
		Time:      tl.now().UTC().Format(time.RFC3339Nano),
		Run:       run,
		Mode:      string(mode),
		Iteration: it,
	})
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = tl.file.Write(data)
}

// Observer returns an engine observer that traces every iteration of a run.
// On a nil TraceLogger it returns nil, which engines treat as no observer.
func (tl *TraceLogger) Observer(run string, mode diffusion.Mode) func(diffusion.Iteration) {
	if tl == nil {
		return nil
	}
	return func(it diffusion.Iteration) {
		tl.LogIteration(run, mode, it)
	}
}

// Close closes the underlying file. Safe to call on nil receiver.
func (tl *TraceLogger) Close() {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file != nil {
		tl.file.Close()
		tl.file = nil
	}
}
