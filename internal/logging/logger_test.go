package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"trace", LevelTrace},
		{" Trace ", LevelTrace},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantTrace bool
	}{
		{"info", false, false},
		{"debug", true, false},
		{"trace", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.wantDebug {
				t.Errorf("debug visible = %v, want %v", got, tt.wantDebug)
			}

			buf.Reset()
			logger.Log(context.Background(), LevelTrace, "trace message")
			out := buf.String()
			if got := strings.Contains(out, "trace message"); got != tt.wantTrace {
				t.Errorf("trace visible = %v, want %v", got, tt.wantTrace)
			}
			if tt.wantTrace && !strings.Contains(out, "level=TRACE") {
				t.Errorf("trace level not labelled: %q", out)
			}
		})
	}
}

func TestNewDecisionLogger_DisabledAtInfo(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(dir, "info")
	if dl != nil {
		t.Fatal("expected nil DecisionLogger at info level")
	}

	// Nil logger is usable.
	dl.Log(map[string]any{"event": "x"})
	dl.LogChange(Change{Agent: 1})
	if err := dl.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, DecisionFile)); err == nil {
		t.Error("decision file should not exist at info level")
	}
}

func TestNewDecisionLogger_DisabledWithoutDir(t *testing.T) {
	if dl := NewDecisionLogger("", "trace"); dl != nil {
		t.Error("expected nil DecisionLogger without a directory")
	}
}

func TestDecisionLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(filepath.Join(dir, "traces"), "debug")
	if dl == nil {
		t.Fatal("NewDecisionLogger returned nil at debug level")
	}

	dl.LogChange(Change{Agent: 7, Name: "Erik Voss", Tick: 42, From: "idle", To: "eat", Score: 0.9})
	event := map[string]any{"event": "restore", "agents": 3}
	dl.Log(event)
	if err := dl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := event["time"]; ok {
		t.Error("Log mutated the caller's map")
	}

	// Writes after close are dropped.
	dl.LogChange(Change{Agent: 8})

	f, err := os.Open(filepath.Join(dir, "traces", DecisionFile))
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad JSONL line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	first := lines[0]
	if first["agent"] != float64(7) || first["to"] != "eat" || first["from"] != "idle" {
		t.Errorf("change record = %v", first)
	}
	if _, ok := first["forced"]; ok {
		t.Error("forced should be omitted when false")
	}
	for i, l := range lines {
		if _, ok := l["time"]; !ok {
			t.Errorf("line %d has no time", i)
		}
	}
	if lines[1]["event"] != "restore" {
		t.Errorf("event record = %v", lines[1])
	}
}
