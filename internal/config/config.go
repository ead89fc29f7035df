package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoInterface is returned when neither the command line nor the config file names a capture interface.
var ErrNoInterface = errors.New("no capture interface configured")

// CaptureConfig holds the live capture settings.
type CaptureConfig struct {
	Interfaces  []string `yaml:"interfaces"`
	SnapshotLen int32    `yaml:"snapshot_len"`
	Promiscuous bool     `yaml:"promiscuous"`
	ReadTimeout string   `yaml:"read_timeout"`
	BPFFilter   string   `yaml:"bpf_filter"`
}

// StoreConfig holds the metrics store settings.
type StoreConfig struct {
	NumShards uint32 `yaml:"num_shards"`
	// MaxConnections bounds the connection table. 0 keeps it unbounded.
	MaxConnections int `yaml:"max_connections"`
}

// ResolverConfig holds the reverse-lookup cache settings.
type ResolverConfig struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout"`
	// MaxEntries bounds the cache with LRU eviction. 0 keeps it unbounded.
	MaxEntries int `yaml:"max_entries"`
}

// CSVConfig configures the CSV export writer.
type CSVConfig struct {
	Dir string `yaml:"dir"`
}

// GobConfig configures the gob export writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSConfig holds the connection details for the NATS snapshot publisher.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// SQLConfig holds the connection details for a SQL snapshot table.
type SQLConfig struct {
	Driver string `yaml:"driver"` // sqlite3 | postgres
	DSN    string `yaml:"dsn"`
}

// WriterDef defines a single export writer.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	CSV              CSVConfig        `yaml:"csv"`
	Gob              GobConfig        `yaml:"gob"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
	NATS             NATSConfig       `yaml:"nats"`
	SQL              SQLConfig        `yaml:"sql"`
}

// Interval parses the writer's snapshot interval.
func (w WriterDef) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(w.SnapshotInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid snapshot_interval for writer '%s': %w", w.Type, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("snapshot_interval for writer '%s' must be positive", w.Type)
	}
	return d, nil
}

// ExporterConfig lists the writers fed by the snapshot exporter.
type ExporterConfig struct {
	Writers []WriterDef `yaml:"writers"`
}

// QueryConfig selects where the query service and the dashboard read
// exported snapshots from.
type QueryConfig struct {
	Source     string           `yaml:"source"` // csv | gob | clickhouse
	DataDir    string           `yaml:"data_dir"`
	GobPath    string           `yaml:"gob_path"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// APIConfig configures the HTTP query service.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// HealthConfig configures the gRPC health endpoint of the monitor.
type HealthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AlerterRule defines a threshold on a snapshot metric.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"` // total_packets | total_bytes | connections | untracked_observations | protocol:<TAG>
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// SMTPConfig holds the settings for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AlerterConfig holds the alert rules and their evaluation interval.
type AlerterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval string        `yaml:"check_interval"`
	Rules         []AlerterRule `yaml:"rules"`
	SMTP          SMTPConfig    `yaml:"smtp"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Store    StoreConfig    `yaml:"store"`
	Resolver ResolverConfig `yaml:"resolver"`
	Exporter ExporterConfig `yaml:"exporter"`
	Query    QueryConfig    `yaml:"query"`
	API      APIConfig      `yaml:"api"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
	Alerter  AlerterConfig  `yaml:"alerter"`
}

// Default returns the configuration used when no file is given: export CSV
// files into ./data once per second and resolve hostnames without bounds.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			SnapshotLen: 1600,
			Promiscuous: true,
			ReadTimeout: "500ms",
		},
		Store: StoreConfig{NumShards: 16},
		Resolver: ResolverConfig{
			Enabled: true,
			Timeout: "2s",
		},
		Exporter: ExporterConfig{
			Writers: []WriterDef{
				{Type: "csv", Enabled: true, SnapshotInterval: "1s", CSV: CSVConfig{Dir: "data"}},
			},
		},
		Query: QueryConfig{
			Source:  "csv",
			DataDir: "data",
			GobPath: "snapshots",
		},
		API:    APIConfig{ListenAddr: ":8000"},
		Health: HealthConfig{ListenAddr: ":50051"},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Alerter: AlerterConfig{CheckInterval: "10s"},
	}
}

// LoadConfig reads the configuration from a YAML file on top of Default.
// An empty path returns the defaults.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()
	if filePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional is LoadConfig for a path that may be absent: a missing file
// that was not explicitly requested yields the defaults.
func LoadOptional(filePath string, required bool) (*Config, error) {
	if !required {
		if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
	}
	return LoadConfig(filePath)
}

// Validate checks values that cannot be corrected by defaults.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Capture.ReadTimeout); err != nil {
		return fmt.Errorf("invalid capture read_timeout: %w", err)
	}
	if c.Resolver.Enabled {
		if _, err := time.ParseDuration(c.Resolver.Timeout); err != nil {
			return fmt.Errorf("invalid resolver timeout: %w", err)
		}
	}
	if c.Store.MaxConnections < 0 {
		return fmt.Errorf("store max_connections must not be negative")
	}
	if c.Resolver.MaxEntries < 0 {
		return fmt.Errorf("resolver max_entries must not be negative")
	}
	for _, w := range c.Exporter.Writers {
		if !w.Enabled {
			continue
		}
		if _, err := w.Interval(); err != nil {
			return err
		}
	}
	switch c.Query.Source {
	case "csv", "gob", "clickhouse":
	default:
		return fmt.Errorf("unknown query source '%s'", c.Query.Source)
	}
	if c.Alerter.Enabled {
		d, err := time.ParseDuration(c.Alerter.CheckInterval)
		if err != nil {
			return fmt.Errorf("invalid check_interval for alerter: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("alerter check_interval must be positive")
		}
	}
	return nil
}

// ResolverTimeout returns the per-lookup timeout, 0 meaning none.
func (c *Config) ResolverTimeout() time.Duration {
	d, err := time.ParseDuration(c.Resolver.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// CaptureReadTimeout returns the live capture read timeout.
func (c *Config) CaptureReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Capture.ReadTimeout)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// SelectInterfaces picks the capture interfaces: explicit arguments win over the config file.
// A blank or repeated name is an error, since each interface is opened once.
func (c *Config) SelectInterfaces(args []string) ([]string, error) {
	selected := args
	if len(selected) == 0 {
		selected = c.Capture.Interfaces
	}
	if len(selected) == 0 {
		return nil, ErrNoInterface
	}

	seen := make(map[string]struct{}, len(selected))
	for _, name := range selected {
		if name == "" {
			return nil, fmt.Errorf("empty interface name in %q", selected)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("interface '%s' given more than once", name)
		}
		seen[name] = struct{}{}
	}
	return selected, nil
}
