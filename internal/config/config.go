package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only configuration file version this build accepts.
const CurrentVersion = "1.0"

// Config is the hotupdate configuration file.
type Config struct {
	Version       string         `yaml:"version" validate:"eq=1.0"`
	DataDir       string         `yaml:"data_dir" validate:"required"`
	BundleVersion string         `yaml:"bundle_version" validate:"required"`
	Content       ContentConfig  `yaml:"content"`
	Canary        CanaryConfig   `yaml:"canary"`
	Download      DownloadConfig `yaml:"download"`
	State         StateConfig    `yaml:"state"`
	Events        EventsConfig   `yaml:"events"`
	Server        ServerConfig   `yaml:"server"`
	Metrics       MetricsConfig  `yaml:"metrics"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// ContentConfig describes the content served to the host.
type ContentConfig struct {
	RootDir   string `yaml:"root_dir" validate:"required,excludesall=/\\"` // name of the content root inside an artifact
	EntryFile string `yaml:"entry_file" validate:"required"`               // file that must exist for staged content to be activatable
	BundleDir string `yaml:"bundle_dir,omitempty"`                         // content shipped with the application
}

type CanaryConfig struct {
	Timeout string `yaml:"timeout" validate:"duration"`
}

// DownloadConfig controls the HTTP downloader.
type DownloadConfig struct {
	ConnectTimeout string      `yaml:"connect_timeout" validate:"duration"`
	ReadTimeout    string      `yaml:"read_timeout" validate:"duration"`
	Retry          RetryConfig `yaml:"retry"`
	// MaxExtractBytes caps the uncompressed size of an update container.
	MaxExtractBytes int64 `yaml:"max_extract_bytes" validate:"gte=0"`
}

// RetryConfig mirrors retry.Policy in file form.
type RetryConfig struct {
	Mode       RetryBackoffMode `yaml:"mode" validate:"oneof=fixed linear exponential"`
	Initial    string           `yaml:"initial" validate:"duration"`
	Max        string           `yaml:"max" validate:"duration"`
	MaxRetries int              `yaml:"max_retries" validate:"gte=0,lte=10"`
}

// StateConfig selects the persisted state backend.
type StateConfig struct {
	Backend StateBackend `yaml:"backend" validate:"oneof=json badger"`
	Path    string       `yaml:"path,omitempty"` // defaults under data_dir
}

// EventsConfig configures the lifecycle journal and optional NATS publishing.
type EventsConfig struct {
	JournalPath string     `yaml:"journal_path,omitempty"`
	NATS        NATSConfig `yaml:"nats"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" validate:"required_if=Enabled true"`
	Subject string `yaml:"subject" validate:"required_if=Enabled true"`
}

// ServerConfig holds listen addresses for `serve`.
type ServerConfig struct {
	BridgeAddr  string `yaml:"bridge_addr" validate:"required,hostname_port"`
	ContentAddr string `yaml:"content_addr" validate:"required,hostname_port"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"startswith=/"`
}

type LoggingConfig struct {
	Level  LogLevel  `yaml:"level" validate:"oneof=debug info warn error"`
	Format LogFormat `yaml:"format" validate:"oneof=json text"`
}

// CanaryTimeout returns the parsed canary grace period.
func (c *Config) CanaryTimeout() time.Duration {
	return mustDuration(c.Canary.Timeout, DefaultCanaryTimeout)
}

func (c *Config) ConnectTimeout() time.Duration {
	return mustDuration(c.Download.ConnectTimeout, DefaultConnectTimeout)
}

func (c *Config) ReadTimeout() time.Duration {
	return mustDuration(c.Download.ReadTimeout, DefaultReadTimeout)
}

// StatePath returns the state backend location, resolved against data_dir.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	if c.State.Backend == StateBackendBadger {
		return filepath.Join(c.DataDir, "state.badger")
	}
	return filepath.Join(c.DataDir, "state.json")
}

// JournalPath returns the SQLite journal location, resolved against data_dir.
func (c *Config) JournalPath() string {
	if c.Events.JournalPath != "" {
		return c.Events.JournalPath
	}
	return filepath.Join(c.DataDir, "events.db")
}

// mustDuration parses a validated duration string; invalid input yields fallback.
func mustDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Load loads, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes configuration bytes with environment expansion, then applies
// defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported configuration version: %q (expected %s)", cfg.Version, CurrentVersion)
	}

	if err := normalize(&cfg); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied for dataDir.
func Default(dataDir, bundleVersion string) *Config {
	cfg := &Config{Version: CurrentVersion, DataDir: dataDir, BundleVersion: bundleVersion}
	applyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default("${HOTUPDATE_DATA_DIR}", "1.0.0")
	example.Content.BundleDir = "./bundle/www"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# hotupdate configuration\n# Values of the form ${VAR} are expanded from the environment (and .env).\n\n")
	if err := os.WriteFile(configPath, append(header, data...), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
