package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Go2NetMonitor/internal/config"

	"github.com/sirupsen/logrus"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "monitor.log")
	logger, err := New(config.LogConfig{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", logger.GetLevel())
	}

	logger.WithField("iface", "eth0").Info("capture started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"iface":"eth0"`) {
		t.Errorf("Expected JSON field in log output, got %s", data)
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := New(config.LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("Expected error for unknown format")
	}
}
