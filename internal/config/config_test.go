package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplinkd/uplink/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	require.NoError(t, cfg.Validate())

	assert.Equal(t, "uplink", cfg.App.Name)
	assert.Equal(t, uint(3), cfg.Monitor.MissedThreshold)
	assert.Equal(t, 30*time.Second, cfg.Monitor.ProbeInterval)
	assert.Equal(t, "/api/health", cfg.Probe.Path)
	assert.False(t, cfg.Probe.RetryOnTransportError)
	assert.Equal(t, config.PushWebSocket, cfg.Push.Transport)
	assert.Equal(t, config.SettingsHTTP, cfg.Settings.Backend)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8181", cfg.Server.Address())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(*config.Config) {},
		},
		{
			name:    "zero missed threshold",
			mutate:  func(c *config.Config) { c.Monitor.MissedThreshold = 0 },
			wantErr: true,
		},
		{
			name:    "negative probe interval",
			mutate:  func(c *config.Config) { c.Monitor.ProbeInterval = -time.Second },
			wantErr: true,
		},
		{
			name:    "empty probe base URL",
			mutate:  func(c *config.Config) { c.Probe.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "relative probe path",
			mutate:  func(c *config.Config) { c.Probe.Path = "api/health" },
			wantErr: true,
		},
		{
			name:    "unknown push transport",
			mutate:  func(c *config.Config) { c.Push.Transport = "carrier-pigeon" },
			wantErr: true,
		},
		{
			name:    "websocket transport without URL",
			mutate:  func(c *config.Config) { c.Push.URL = "" },
			wantErr: true,
		},
		{
			name: "redis transport without channel",
			mutate: func(c *config.Config) {
				c.Push.Transport = config.PushRedis
				c.Push.Channel = ""
			},
			wantErr: true,
		},
		{
			name: "none transport needs no URL",
			mutate: func(c *config.Config) {
				c.Push.Transport = config.PushNone
				c.Push.URL = ""
			},
		},
		{
			name: "reconnect max below initial",
			mutate: func(c *config.Config) {
				c.Push.ReconnectInitial = 10 * time.Second
				c.Push.ReconnectMax = time.Second
			},
			wantErr: true,
		},
		{
			name:    "unknown settings backend",
			mutate:  func(c *config.Config) { c.Settings.Backend = "etcd" },
			wantErr: true,
		},
		{
			name: "mongo backend without database",
			mutate: func(c *config.Config) {
				c.Settings.Backend = config.SettingsMongo
				c.MongoDB.Database = ""
			},
			wantErr: true,
		},
		{
			name: "memory backend needs nothing",
			mutate: func(c *config.Config) {
				c.Settings.Backend = config.SettingsMemory
				c.Settings.BaseURL = ""
			},
		},
		{
			name:    "port out of range",
			mutate:  func(c *config.Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *config.Config) { c.Log.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *config.Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, config.ErrConfigInvalid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
app:
  name: uplink-test
monitor:
  missed_threshold: 5
  probe_interval: 10s
probe:
  base_url: http://service.internal:8181
push:
  transport: none
settings:
  backend: memory
log:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "uplink-test", cfg.App.Name)
	assert.Equal(t, uint(5), cfg.Monitor.MissedThreshold)
	assert.Equal(t, 10*time.Second, cfg.Monitor.ProbeInterval)
	assert.Equal(t, "http://service.internal:8181", cfg.Probe.BaseURL)
	assert.Equal(t, config.PushNone, cfg.Push.Transport)
	assert.Equal(t, config.SettingsMemory, cfg.Settings.Backend)
	assert.True(t, cfg.IsDevelopment())

	// Values the file omits keep their defaults.
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "/api/health", cfg.Probe.Path)
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := config.LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PROBE_BASE_URL", "http://other-host:9000")
	t.Setenv("PROBE_RETRY_ON_TRANSPORT_ERROR", "true")
	t.Setenv("MONITOR_MISSED_THRESHOLD", "7")
	t.Setenv("MONITOR_PROBE_INTERVAL", "45s")
	t.Setenv("PUSH_TRANSPORT", "none")
	t.Setenv("SETTINGS_BACKEND", "memory")
	t.Setenv("SERVER_PORT", "9001")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://other-host:9000", cfg.Probe.BaseURL)
	assert.True(t, cfg.Probe.RetryOnTransportError)
	assert.Equal(t, uint(7), cfg.Monitor.MissedThreshold)
	assert.Equal(t, 45*time.Second, cfg.Monitor.ProbeInterval)
	assert.Equal(t, config.PushNone, cfg.Push.Transport)
	assert.Equal(t, config.SettingsMemory, cfg.Settings.Backend)
	assert.Equal(t, 9001, cfg.Server.Port)
}

func TestLoadEnvInvalidDuration(t *testing.T) {
	t.Setenv("MONITOR_PROBE_INTERVAL", "soon")

	_, err := config.Load()
	require.ErrorIs(t, err, config.ErrInvalidDuration)
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

	t.Setenv("SERVER_PORT", "9100")

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "environment wins over the file")
}

func TestIsDevelopment(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.False(t, cfg.IsDevelopment())

	cfg.Log.Level = "debug"
	assert.True(t, cfg.IsDevelopment())
}
