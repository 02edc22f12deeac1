package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"none", LevelNone},
		{"invalid", LevelInfo}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")

	l, err := New(LevelDebug, logPath, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("listening on %s", "127.0.0.1:8080")
	l.Debug("drain complete")

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "listening on 127.0.0.1:8080") {
		t.Errorf("log file missing info message: %q", content)
	}
	if !strings.Contains(content, "[DEBUG]") {
		t.Errorf("log file missing debug level: %q", content)
	}
	if !strings.Contains(content, "[test]") {
		t.Errorf("log file missing prefix: %q", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "filtered.log")

	l, err := New(LevelWarn, logPath, "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Debug("should not appear")
	l.Info("should not appear either")
	l.Warn("warning message")

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	content := string(data)
	if strings.Contains(content, "should not appear") {
		t.Errorf("filtered levels leaked into output: %q", content)
	}
	if !strings.Contains(content, "warning message") {
		t.Errorf("warn message missing from output: %q", content)
	}
}

func TestWithPrefix(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "prefixed.log")

	base, err := New(LevelInfo, logPath, "server")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	child := base.WithPrefix("client")
	child.Info("request issued")

	if err := base.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	if !strings.Contains(string(data), "[server:client]") {
		t.Errorf("combined prefix missing: %q", string(data))
	}
}
