package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig writes a fast, API-less config into a temp dir.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "decidersim.yaml")
	body := fmt.Sprintf(`simulation:
  seed: 7
  agents: 6
  radius: 4
  tick_interval: 1ms
persistence:
  path: %s
  save_every_ticks: 2
logging:
  level: info
api:
  port: 0
%s`, filepath.Join(dir, "data", "village.db"), extra)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"run": false, "inspect": false, "config": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, flag := range []string{"config", "log-level", "json"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestConfigCmd_RedactsAdminKey(t *testing.T) {
	path := writeTestConfig(t, "  admin_key: hunter2\n")

	out, err := execute(t, "config", "--config", path)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("admin key leaked:\n%s", out)
	}
	for _, want := range []string{"admin_key: (set)", "agents: 6", "tick_interval: 1ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "config", "--config", path, "--json")
	if err != nil {
		t.Fatalf("config --json: %v", err)
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if decoded["api"]["admin_key"] != "(set)" || decoded["simulation"]["tick_interval"] != "1ms" {
		t.Errorf("json config = %v", decoded)
	}
}

func TestConfigCmd_InvalidConfig(t *testing.T) {
	path := writeTestConfig(t, "")
	if _, err := execute(t, "config", "--config", path, "--log-level", "shouty"); err == nil {
		t.Error("expected invalid log level to fail")
	}
}

func TestRunThenResume(t *testing.T) {
	path := writeTestConfig(t, "")

	out, err := execute(t, "run", "--config", path, "--ticks", "5")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !strings.Contains(out, "6 villagers") || !strings.Contains(out, "stopped at tick 5") {
		t.Errorf("first run output:\n%s", out)
	}

	out, err = execute(t, "run", "--config", path, "--ticks", "3")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(out, "Resuming from tick 5") || !strings.Contains(out, "stopped at tick 8") {
		t.Errorf("resumed run output:\n%s", out)
	}

	out, err = execute(t, "run", "--config", path, "--ticks", "2", "--fresh")
	if err != nil {
		t.Fatalf("fresh run: %v", err)
	}
	if strings.Contains(out, "Resuming") || !strings.Contains(out, "stopped at tick 2") {
		t.Errorf("fresh run output:\n%s", out)
	}
}

func TestInspect(t *testing.T) {
	path := writeTestConfig(t, "")
	if _, err := execute(t, "run", "--config", path, "--ticks", "4"); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, err := execute(t, "inspect", "--config", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if got := strings.Count(out, "\n"); got != 6 {
		t.Errorf("inspect listed %d lines, want 6:\n%s", got, out)
	}

	out, err = execute(t, "inspect", "2", "--config", path)
	if err != nil {
		t.Fatalf("inspect 2: %v", err)
	}
	if !strings.HasPrefix(out, "#2 ") || !strings.Contains(out, "active for") || !strings.Contains(out, "    * (") {
		t.Errorf("inspect 2 output:\n%s", out)
	}

	out, err = execute(t, "inspect", "2", "--config", path, "--json")
	if err != nil {
		t.Fatalf("inspect --json: %v", err)
	}
	var rows []inspectedAgent
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].Agent.ID != 2 || rows[0].Decider == nil || !rows[0].Decider.Active.Valid() {
		t.Errorf("rows = %+v", rows)
	}

	out, err = execute(t, "inspect", "--saves", "--config", path)
	if err != nil {
		t.Fatalf("inspect --saves: %v", err)
	}
	if !strings.Contains(out, "tick 4") || !strings.Contains(out, "tick 0") {
		t.Errorf("saves output:\n%s", out)
	}

	if _, err := execute(t, "inspect", "99", "--config", path); err == nil {
		t.Error("expected unknown agent to fail")
	}
	if _, err := execute(t, "inspect", "abc", "--config", path); err == nil {
		t.Error("expected bad id to fail")
	}
}

func TestInspect_NoSavedVillage(t *testing.T) {
	path := writeTestConfig(t, "")
	if _, err := execute(t, "inspect", "--config", path); err == nil {
		t.Error("expected error without a saved village")
	}
}
