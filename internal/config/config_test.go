package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Exporter.Writers) != 1 || cfg.Exporter.Writers[0].Type != "csv" {
		t.Fatalf("Expected a single default csv writer, got %+v", cfg.Exporter.Writers)
	}
	if cfg.Exporter.Writers[0].CSV.Dir != "data" {
		t.Errorf("Expected default export dir 'data', got '%s'", cfg.Exporter.Writers[0].CSV.Dir)
	}
	d, err := cfg.Exporter.Writers[0].Interval()
	if err != nil || d != time.Second {
		t.Errorf("Expected default interval 1s, got %v (err %v)", d, err)
	}
	if !cfg.Resolver.Enabled {
		t.Error("Resolver should be enabled by default")
	}
}

func TestLoadConfig_OverridesKeepUnsetDefaults(t *testing.T) {
	path := writeConfig(t, `
capture:
  interfaces: ["eth0", "eth1"]
store:
  max_connections: 500
resolver:
  enabled: false
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Capture.Interfaces; len(got) != 2 || got[0] != "eth0" {
		t.Errorf("Unexpected interfaces: %v", got)
	}
	if cfg.Store.MaxConnections != 500 {
		t.Errorf("Expected max_connections 500, got %d", cfg.Store.MaxConnections)
	}
	if cfg.Store.NumShards != 16 {
		t.Errorf("Expected default shard count to survive, got %d", cfg.Store.NumShards)
	}
	if cfg.Resolver.Enabled {
		t.Error("Resolver should have been disabled")
	}
	if cfg.Capture.SnapshotLen != 1600 {
		t.Errorf("Expected default snapshot_len, got %d", cfg.Capture.SnapshotLen)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "capture: [unclosed"},
		{"bad writer interval", "exporter:\n  writers:\n    - type: csv\n      enabled: true\n      snapshot_interval: soon\n"},
		{"zero writer interval", "exporter:\n  writers:\n    - type: csv\n      enabled: true\n      snapshot_interval: 0s\n"},
		{"negative bound", "store:\n  max_connections: -1\n"},
		{"bad resolver timeout", "resolver:\n  timeout: never\n"},
		{"bad alerter interval", "alerter:\n  enabled: true\n  check_interval: x\n"},
		{"unknown query source", "query:\n  source: redis\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Errorf("Expected an error for %s", tt.name)
			}
		})
	}
}

func TestLoadConfig_DisabledWriterIsNotValidated(t *testing.T) {
	path := writeConfig(t, "exporter:\n  writers:\n    - type: gob\n      enabled: false\n      snapshot_interval: bogus\n")
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("Disabled writer should be ignored, got %v", err)
	}
}

func TestLoadConfig_SampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Sample config does not load: %v", err)
	}
	if len(cfg.Exporter.Writers) != 5 {
		t.Errorf("Expected 5 writer definitions, got %d", len(cfg.Exporter.Writers))
	}
	if cfg.Query.Source != "csv" || cfg.Query.ClickHouse.Port != 9000 {
		t.Errorf("Unexpected query section: %+v", cfg.Query)
	}
	if len(cfg.Alerter.Rules) != 2 {
		t.Errorf("Expected 2 alerter rules, got %d", len(cfg.Alerter.Rules))
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := LoadOptional(missing, false)
	if err != nil {
		t.Fatalf("Expected defaults for an absent optional file, got %v", err)
	}
	if cfg.API.ListenAddr != ":8000" {
		t.Errorf("Expected default listen address, got %q", cfg.API.ListenAddr)
	}

	if _, err := LoadOptional(missing, true); err == nil {
		t.Error("Expected an error for an absent required file")
	}

	path := writeConfig(t, "api:\n  listen_addr: \":9090\"\n")
	cfg, err = LoadOptional(path, false)
	if err != nil {
		t.Fatalf("LoadOptional failed: %v", err)
	}
	if cfg.API.ListenAddr != ":9090" {
		t.Errorf("Expected the file to be read, got %q", cfg.API.ListenAddr)
	}
}

func TestSelectInterfaces(t *testing.T) {
	cfg := Default()
	if _, err := cfg.SelectInterfaces(nil); !errors.Is(err, ErrNoInterface) {
		t.Fatalf("Expected ErrNoInterface, got %v", err)
	}

	cfg.Capture.Interfaces = []string{"eth0"}
	got, err := cfg.SelectInterfaces(nil)
	if err != nil || len(got) != 1 || got[0] != "eth0" {
		t.Errorf("Expected config interface, got %v (err %v)", got, err)
	}

	got, err = cfg.SelectInterfaces([]string{"wlan0"})
	if err != nil || len(got) != 1 || got[0] != "wlan0" {
		t.Errorf("Expected argument to win, got %v (err %v)", got, err)
	}
}

func TestSelectInterfaces_InvalidNames(t *testing.T) {
	cfg := Default()
	for _, args := range [][]string{{"eth0", ""}, {"eth0", "eth1", "eth0"}} {
		_, err := cfg.SelectInterfaces(args)
		if err == nil {
			t.Errorf("Expected an error for %q", args)
			continue
		}
		if errors.Is(err, ErrNoInterface) {
			t.Errorf("Invalid names %q must not be reported as a missing interface: %v", args, err)
		}
	}

	cfg.Capture.Interfaces = []string{"eth0", "eth0"}
	if _, err := cfg.SelectInterfaces(nil); err == nil || errors.Is(err, ErrNoInterface) {
		t.Errorf("Expected a duplicate error from the config list, got %v", err)
	}
}

func TestTimeoutAccessors(t *testing.T) {
	cfg := Default()
	if got := cfg.ResolverTimeout(); got != 2*time.Second {
		t.Errorf("Expected 2s resolver timeout, got %v", got)
	}
	if got := cfg.CaptureReadTimeout(); got != 500*time.Millisecond {
		t.Errorf("Expected 500ms read timeout, got %v", got)
	}
	cfg.Resolver.Timeout = ""
	if got := cfg.ResolverTimeout(); got != 0 {
		t.Errorf("Expected no timeout for empty value, got %v", got)
	}
}
