package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "btcplaces.db", cfg.Store.Path)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.CacheTTLSecs)
	assert.Equal(t, "https://api.btcmap.org", cfg.BTCMap.BaseURL)
	assert.Equal(t, 120, cfg.BTCMap.TimeoutSecs)
	assert.Equal(t, "https://overpass-api.de", cfg.Overpass.BaseURL)
	assert.Equal(t, 3600, cfg.Sync.IntervalSecs)
	assert.Equal(t, 300, cfg.Sync.RetryDelaySecs)
	assert.Equal(t, 8, cfg.Sync.Workers)
	assert.Equal(t, 300, cfg.Sync.OverpassTimeoutSecs)
	assert.Equal(t, int64(2)<<30, cfg.Sync.OverpassMaxSizeBytes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	raw, err := yaml.Marshal(map[string]any{
		"store": map[string]any{
			"driver":       "postgres",
			"database_url": "postgres://localhost/btcplaces",
			"pool":         map[string]any{"max_conns": 20},
		},
		"server": map[string]any{"port": 9090},
		"sync":   map[string]any{"workers": 2},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), raw, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/btcplaces", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(20), cfg.Store.Pool.MaxConns)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Sync.Workers)

	// Untouched keys keep their defaults.
	assert.Equal(t, 3600, cfg.Sync.IntervalSecs)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BTCPLACES_SERVER_PORT", "3000")
	t.Setenv("BTCPLACES_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shout", Format: "json"})
	require.Error(t, err)

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
