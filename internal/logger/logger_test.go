package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("dev", "loud", FileOptions{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.log")

	log, err := New("prod", "info", FileOptions{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info("slot reserved")
	log.Debug("not written")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "slot reserved") {
		t.Errorf("expected entry in log file, got %q", data)
	}
	if strings.Contains(string(data), "not written") {
		t.Errorf("expected debug entry filtered, got %q", data)
	}
}
