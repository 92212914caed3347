package config

import "time"

// Defaults match the behavior of the shipped mobile plugin.
const (
	DefaultCanaryTimeout  = 20 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 60 * time.Second

	DefaultRootDir     = "www"
	DefaultEntryFile   = "index.html"
	DefaultBridgeAddr  = "127.0.0.1:8470"
	DefaultContentAddr = "127.0.0.1:8471"
	DefaultMetricsPath = "/metrics"
	DefaultNATSSubject = "hotupdate.events"
	DefaultMaxRetries  = 2

	DefaultMaxExtractBytes int64 = 512 << 20
)

// applyDefaults fills every unset field. Normalization has already run, so
// enum fields only hold canonical values or "".
func applyDefaults(cfg *Config) {
	if cfg.Content.RootDir == "" {
		cfg.Content.RootDir = DefaultRootDir
	}
	if cfg.Content.EntryFile == "" {
		cfg.Content.EntryFile = DefaultEntryFile
	}

	if cfg.Canary.Timeout == "" {
		cfg.Canary.Timeout = DefaultCanaryTimeout.String()
	}

	if cfg.Download.ConnectTimeout == "" {
		cfg.Download.ConnectTimeout = DefaultConnectTimeout.String()
	}
	if cfg.Download.ReadTimeout == "" {
		cfg.Download.ReadTimeout = DefaultReadTimeout.String()
	}
	if cfg.Download.MaxExtractBytes == 0 {
		cfg.Download.MaxExtractBytes = DefaultMaxExtractBytes
	}
	r := &cfg.Download.Retry
	// max_retries: 0 is meaningful, so it only defaults when the block is absent.
	if *r == (RetryConfig{}) {
		r.MaxRetries = DefaultMaxRetries
	}
	if r.Mode == "" {
		r.Mode = RetryBackoffExponential
	}
	if r.Initial == "" {
		r.Initial = "1s"
	}
	if r.Max == "" {
		r.Max = "10s"
	}

	if cfg.State.Backend == "" {
		cfg.State.Backend = StateBackendJSON
	}

	if cfg.Events.NATS.Subject == "" {
		cfg.Events.NATS.Subject = DefaultNATSSubject
	}

	if cfg.Server.BridgeAddr == "" {
		cfg.Server.BridgeAddr = DefaultBridgeAddr
	}
	if cfg.Server.ContentAddr == "" {
		cfg.Server.ContentAddr = DefaultContentAddr
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}
