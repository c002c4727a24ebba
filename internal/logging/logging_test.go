package logging

import (
	"os"
	"path/filepath"
	"testing"

	"quiz-attempt-service/internal/config"
)

func TestNewWritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "service.log")
	logger, err := New(config.Log{Level: "debug", File: file})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("sweep finished")
	_ = logger.Sync()

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log line in %s", file)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.Log{Level: "chatty"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
