package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFresh(t *testing.T, path string) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	return Load(path)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFresh(t, "")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 50, cfg.Delivery.Workers)
	assert.Equal(t, time.Second, cfg.Delivery.BackoffBase)
	assert.Equal(t, 2*time.Minute, cfg.Delivery.DrainTimeout)
	assert.Equal(t, "HookRelay", cfg.Delivery.Brand)
	assert.Equal(t, 100, cfg.Logs.Retention)

	d := cfg.Webhooks.Defaults
	assert.True(t, d.Enabled)
	assert.Equal(t, 3, d.RetryAttempts)
	assert.Equal(t, 30, d.TimeoutSeconds)
	assert.True(t, d.EnableSigning)
	assert.False(t, d.EnableRateLimiting)
	assert.Equal(t, 60, d.RateLimit)
	assert.False(t, cfg.Webhooks.RejectDuplicates)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hookrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
webhooks:
  reject_duplicates: true
  defaults:
    timeout_seconds: 10
logs:
  retention: 25
`), 0o600))
	t.Setenv("HOOKRELAY_DELIVERY_WORKERS", "8")

	cfg, err := loadFresh(t, path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Webhooks.RejectDuplicates)
	assert.Equal(t, 10, cfg.Webhooks.Defaults.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Webhooks.Defaults.RetryAttempts)
	assert.Equal(t, 25, cfg.Logs.Retention)
	assert.Equal(t, 8, cfg.Delivery.Workers)
}

func TestLoadRejectsOutOfRangeDefaults(t *testing.T) {
	t.Setenv("HOOKRELAY_WEBHOOKS_DEFAULTS_TIMEOUT_SECONDS", "500")

	_, err := loadFresh(t, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeoutSeconds")
}

func TestValidate(t *testing.T) {
	cfg, err := loadFresh(t, "")
	require.NoError(t, err)

	bad := *cfg
	bad.Storage.Driver = "mongo"
	assert.ErrorContains(t, bad.Validate(), "unsupported storage driver")

	bad = *cfg
	bad.Logs.Driver = "redis"
	assert.ErrorContains(t, bad.Validate(), "logs.redis.url")

	bad = *cfg
	bad.Delivery.BackoffMax = bad.Delivery.BackoffBase / 2
	assert.ErrorContains(t, bad.Validate(), "backoff")
}
