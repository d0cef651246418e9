// Package logging provides leveled operational logging and the decision
// trace written whenever a villager switches action.
//
// Operational output goes through a leveled slog.Logger. Decision traces are
// appended as JSONL to <dir>/decisions.jsonl, one record per action change.
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
)

// LevelTrace sits below Debug and enables per-tick scoring output.
const LevelTrace = slog.LevelDebug - 4

// DecisionFile is the trace file name inside the decision directory.
const DecisionFile = "decisions.jsonl"

// ParseLevel maps "info", "debug", "trace", "warn" or "error"
// (case-insensitive) to a slog.Level. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
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

// Change is one action switch of one villager.
type Change struct {
	Agent uint64  `json:"agent"`
	Name  string  `json:"name,omitempty"`
	Tick  uint64  `json:"tick"`
	From  string  `json:"from"`
	To    string  `json:"to"`
	Score float64 `json:"score"`
	// Forced is set when the switch came from an admin force.
	Forced bool `json:"forced,omitempty"`
}

// DecisionLogger appends decision records to a JSONL file. It is safe for
// concurrent use, and every method is a no-op on a nil receiver.
type DecisionLogger struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewDecisionLogger opens dir/decisions.jsonl for append. It returns nil,
// which is a valid disabled logger, at info level and above, when dir is
// empty, or when the file cannot be opened.
func NewDecisionLogger(dir, level string) *DecisionLogger {
	if dir == "" || ParseLevel(level) >= slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Warn("decision log disabled", "dir", dir, "error", err)
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, DecisionFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Warn("decision log disabled", "dir", dir, "error", err)
		return nil
	}
	return &DecisionLogger{file: f, now: time.Now}
}

// LogChange records one action switch.
func (dl *DecisionLogger) LogChange(c Change) {
	if dl == nil {
		return
	}
	dl.write(struct {
		Time string `json:"time"`
		Change
	}{Time: dl.now().UTC().Format(time.RFC3339Nano), Change: c})
}

// Log records a free-form event. The caller's map is not modified.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = dl.now().UTC().Format(time.RFC3339Nano)
	dl.write(entry)
}

func (dl *DecisionLogger) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file == nil {
		return
	}
	_, _ = dl.file.Write(data)
}

// Close closes the trace file.
func (dl *DecisionLogger) Close() error {
	if dl == nil {
		return nil
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file == nil {
		return nil
	}
	err := dl.file.Close()
	dl.file = nil
	return err
}
