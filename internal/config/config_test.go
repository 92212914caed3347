package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
version: "1.0"
data_dir: /var/lib/app
bundle_version: "1.0.0"
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "www", cfg.Content.RootDir)
	assert.Equal(t, "index.html", cfg.Content.EntryFile)
	assert.Equal(t, 20*time.Second, cfg.CanaryTimeout())
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout())
	assert.Equal(t, RetryBackoffExponential, cfg.Download.Retry.Mode)
	assert.Equal(t, DefaultMaxRetries, cfg.Download.Retry.MaxRetries)
	assert.Equal(t, DefaultMaxExtractBytes, cfg.Download.MaxExtractBytes)
	assert.Equal(t, StateBackendJSON, cfg.State.Backend)
	assert.Equal(t, filepath.Join("/var/lib/app", "state.json"), cfg.StatePath())
	assert.Equal(t, filepath.Join("/var/lib/app", "events.db"), cfg.JournalPath())
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
}

func TestParse_ExplicitZeroRetries(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
download:
  retry:
    mode: Fixed
    max_retries: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Download.Retry.MaxRetries)
	assert.Equal(t, RetryBackoffFixed, cfg.Download.Retry.Mode)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("HU_TEST_DATA", "/srv/hu")
	cfg, err := Parse([]byte(`
version: "1.0"
data_dir: ${HU_TEST_DATA}
bundle_version: "2.0.0"
state:
  backend: BADGER
`))
	require.NoError(t, err)
	assert.Equal(t, "/srv/hu", cfg.DataDir)
	assert.Equal(t, StateBackendBadger, cfg.State.Backend)
	assert.Equal(t, filepath.Join("/srv/hu", "state.badger"), cfg.StatePath())
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"wrong version":   "version: \"2.0\"\ndata_dir: /x\nbundle_version: \"1\"\n",
		"missing dir":     "version: \"1.0\"\nbundle_version: \"1\"\n",
		"bad duration":    minimalYAML + "canary:\n  timeout: soon\n",
		"bad backend":     minimalYAML + "state:\n  backend: etcd\n",
		"nested root dir": minimalYAML + "content:\n  root_dir: a/www\n",
		"nats no url":     minimalYAML + "events:\n  nats:\n    enabled: true\n",
		"bad level":       minimalYAML + "logging:\n  level: loud\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestInit_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hotupdate.yaml")
	t.Setenv("HOTUPDATE_DATA_DIR", dir)

	require.NoError(t, Init(path, false))
	assert.Error(t, Init(path, false), "existing file must not be overwritten without force")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "./bundle/www", cfg.Content.BundleDir)
}

func TestLoadEnvFile_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HU_ENV_A=file\nHU_ENV_B=file\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("HU_ENV_A", "process")
	t.Setenv("HU_ENV_B", "")
	require.NoError(t, os.Unsetenv("HU_ENV_B"))

	require.NoError(t, loadEnvFile())
	assert.Equal(t, "process", os.Getenv("HU_ENV_A"))
	assert.Equal(t, "file", os.Getenv("HU_ENV_B"))
	t.Cleanup(func() { _ = os.Unsetenv("HU_ENV_B") })
}

func TestLogLevel_SlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", NormalizeLogLevel("Debug").SlogLevel().String())
	assert.Equal(t, "WARN", NormalizeLogLevel("warning").SlogLevel().String())
	assert.Equal(t, "INFO", NormalizeLogLevel("").SlogLevel().String())
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat(" JSON "))
}
