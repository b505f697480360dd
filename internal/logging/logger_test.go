package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesJSONToStateDir(t *testing.T) {
	stateDir := t.TempDir()

	log, err := NewLogger(stateDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	log.WithComponent("monitor").WithSprint("Auth_Sprint").Info("sprint assigned", "coder", "A")
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(filepath.Join(stateDir, "debug.log"))
	if err != nil {
		t.Fatalf("opening debug.log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("debug.log is empty")
	}

	var entry map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "sprint assigned" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "monitor" || entry["sprint"] != "Auth_Sprint" || entry["coder"] != "A" {
		t.Errorf("attributes = %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	stateDir := t.TempDir()

	log, err := NewLogger(stateDir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	log.Info("filtered out")
	log.Warn("kept")
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(stateDir, "debug.log"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "filtered out") {
		t.Error("info entry written at WARN level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn entry missing")
	}
}

func TestChildLoggersDoNotMutateParent(t *testing.T) {
	log := NopLogger()
	child := log.WithComponent("merge")

	if len(log.attrs) != 0 {
		t.Errorf("parent attrs = %v, want empty", log.attrs)
	}
	if len(child.attrs) != 1 {
		t.Errorf("child attrs = %v, want 1", child.attrs)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
