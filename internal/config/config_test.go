package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "sessions.db", cfg.DB.Path)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, 300*time.Second, cfg.Tracker.BatchInterval)
	require.Equal(t, 24*time.Hour, cfg.Tracker.PartitionCheckInterval)
	require.Equal(t, 5*time.Minute, cfg.Tracker.CacheTTL)
	require.Equal(t, 30*time.Second, cfg.Tracker.StoreTimeout)
	require.Equal(t, 365, cfg.Retention.SessionDays)
	require.Equal(t, 30, cfg.Retention.ErrorDays)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  path: /var/lib/tracker/sessions.db
log:
  level: debug
tracker:
  batch_interval: 1m
  cache_ttl: 30s
retention:
  session_days: 90
`), 0o644))
	t.Setenv("TRACKER_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/var/lib/tracker/sessions.db", cfg.DB.Path)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, time.Minute, cfg.Tracker.BatchInterval)
	require.Equal(t, 30*time.Second, cfg.Tracker.CacheTTL)
	require.Equal(t, 90, cfg.Retention.SessionDays)
	// Untouched keys keep their defaults.
	require.Equal(t, 24*time.Hour, cfg.Tracker.PartitionCheckInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  path: from-file.db
tracker:
  batch_interval: 1m
`), 0o644))
	t.Setenv("TRACKER_CONFIG_PATH", path)
	t.Setenv("TRACKER_DB_PATH", "from-env.db")
	t.Setenv("TRACKER_BATCH_INTERVAL", "10s")
	t.Setenv("TRACKER_RETENTION_DAYS", "14")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-env.db", cfg.DB.Path)
	require.Equal(t, 10*time.Second, cfg.Tracker.BatchInterval)
	require.Equal(t, 14, cfg.Retention.SessionDays)
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("TRACKER_BATCH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("TRACKER_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}
