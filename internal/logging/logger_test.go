package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quiz-nexus-service/internal/config"
)

func TestNewWritesJSONFile(t *testing.T) {
	var cfg config.Config
	cfg.Log.Level = "debug"
	cfg.Log.File = filepath.Join(t.TempDir(), "service.log")

	log, err := New(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Debug("hello")
	_ = log.Sync()

	data, err := os.ReadFile(cfg.Log.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 || data[0] != '{' {
		t.Fatalf("expected JSON log line, got %q", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	var cfg config.Config
	cfg.Log.Level = "chatty"
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestConsoleLogsStayOffStdout(t *testing.T) {
	stdout, _ := os.CreateTemp(t.TempDir(), "stdout")
	stderr, _ := os.CreateTemp(t.TempDir(), "stderr")
	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = stdout, stderr
	t.Cleanup(func() { os.Stdout, os.Stderr = origOut, origErr })

	log, err := New(config.Config{})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("results exported")
	_ = log.Sync()

	if out, _ := os.ReadFile(stdout.Name()); len(out) != 0 {
		t.Fatalf("stdout must stay clean, got %q", out)
	}
	if errOut, _ := os.ReadFile(stderr.Name()); !strings.Contains(string(errOut), "results exported") {
		t.Fatalf("expected log line on stderr, got %q", errOut)
	}
}
