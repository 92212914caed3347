package config

import "fmt"

// normalize case-folds enum fields. Unknown non-empty values are errors so a
// typo never silently selects a default backend.
func normalize(cfg *Config) error {
	if cfg.Download.Retry.Mode != "" {
		mode, err := retryBackoffNormalizer.NormalizeWithError(string(cfg.Download.Retry.Mode))
		if err != nil || mode == "" {
			return fmt.Errorf("download.retry.mode: invalid value %q", cfg.Download.Retry.Mode)
		}
		cfg.Download.Retry.Mode = mode
	}

	if cfg.State.Backend != "" {
		backend, err := stateBackendNormalizer.NormalizeWithError(string(cfg.State.Backend))
		if err != nil || backend == "" {
			return fmt.Errorf("state.backend: invalid value %q", cfg.State.Backend)
		}
		cfg.State.Backend = backend
	}

	level, err := logLevelNormalizer.NormalizeWithError(string(cfg.Logging.Level))
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	cfg.Logging.Level = level

	format, err := logFormatNormalizer.NormalizeWithError(string(cfg.Logging.Format))
	if err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	cfg.Logging.Format = format
	return nil
}
