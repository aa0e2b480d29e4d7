package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tillpoint/possync/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "possync.db", cfg.DB.Path)
	require.Equal(t, "stdio", cfg.Transport.Mode)
	require.Equal(t, 2*time.Second, cfg.Sync.Debounce)
	require.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	require.Equal(t, 200, cfg.Sync.LogCap)
	require.Equal(t, "sqlite", cfg.Lease.Backend)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "possync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  path: /var/lib/possync/till.db
remote:
  url: https://sync.example.com
  timeout: 4s
sync:
  debounce: 500ms
  log_cap: 50
auth:
  enabled: true
  tokens:
    secret: shop1
`), 0o644))

	t.Setenv("POSSYNC_CONFIG_PATH", path)
	t.Setenv("POSSYNC_SYNC_LOG_CAP", "75")
	t.Setenv("POSSYNC_TRANSPORT_MODE", "http")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "/var/lib/possync/till.db", cfg.DB.Path)
	require.Equal(t, "https://sync.example.com", cfg.Remote.URL)
	require.Equal(t, 4*time.Second, cfg.Remote.Timeout)
	require.Equal(t, 500*time.Millisecond, cfg.Sync.Debounce)
	require.Equal(t, 75, cfg.Sync.LogCap)
	require.Equal(t, "http", cfg.Transport.Mode)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "shop1", cfg.Auth.Tokens["secret"])
	require.Equal(t, 15*time.Second, cfg.Sync.ProbeInterval)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("POSSYNC_SERVER_PORT", "abc")
	_, err := config.Load()
	require.ErrorContains(t, err, "POSSYNC_SERVER_PORT")

	t.Setenv("POSSYNC_SERVER_PORT", "8080")
	t.Setenv("POSSYNC_LOG_LEVEL", "loud")
	_, err = config.Load()
	require.ErrorContains(t, err, "Level")

	t.Setenv("POSSYNC_LOG_LEVEL", "info")
	t.Setenv("POSSYNC_SYNC_DEBOUNCE", "soon")
	_, err = config.Load()
	require.ErrorContains(t, err, "POSSYNC_SYNC_DEBOUNCE")
}

func TestValidate_RedisLeaseNeedsAddr(t *testing.T) {
	cfg := config.Default()
	cfg.Lease.Backend = "redis"
	cfg.Redis.Addr = ""
	require.ErrorContains(t, cfg.Validate(), "Addr")

	cfg.Redis.Addr = "localhost:6379"
	require.NoError(t, cfg.Validate())
}
