package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/hostbridge/internal/engine/relay"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 5*time.Second, cfg.ResolveWindow())
}

func TestLoadFromPath_YAML(t *testing.T) {
	path := writeFile(t, "hostbridge.yaml", `
bridge:
  poll_interval: 250ms
  max_attempts: 8
host:
  kind: goja
  script: host.js
logging:
  level: debug
  format: json
relays:
  - object: OriginIGO
    signal: stateChanged
    event: IGO_VISIBLE
    when: payload.visible == true
    transform: $.payload.visible
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Bridge.PollInterval)
	assert.Equal(t, 8, cfg.Bridge.MaxAttempts)
	assert.Equal(t, 512, cfg.Bridge.EventBufferSize)
	assert.Equal(t, HostGoja, cfg.Host.Kind)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []relay.Rule{{
		Object:    "OriginIGO",
		Signal:    "stateChanged",
		Event:     "IGO_VISIBLE",
		When:      "payload.visible == true",
		Transform: "$.payload.visible",
	}}, cfg.Relays)

	rc := cfg.Runtime()
	assert.Equal(t, 250*time.Millisecond, rc.PollInterval)
	assert.Equal(t, "hostbridge", rc.MetricsNamespace)
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := writeFile(t, "hostbridge.toml", `
[bridge]
poll_interval = "50ms"
max_attempts = 3

[host]
kind = "websocket"
url = "ws://127.0.0.1:7000/host"

[metrics]
namespace = "page"
listen = ":9999"
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.Bridge.PollInterval)
	assert.Equal(t, 3, cfg.Bridge.MaxAttempts)
	assert.Equal(t, HostWebSocket, cfg.Host.Kind)
	assert.Equal(t, "ws://127.0.0.1:7000/host", cfg.Host.URL)
	assert.Equal(t, "page", cfg.Metrics.Namespace)
	assert.Equal(t, ":9999", cfg.Metrics.Listen)
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	t.Setenv("HOSTBRIDGE_MAX_ATTEMPTS", "12")
	t.Setenv("HOSTBRIDGE_POLL_INTERVAL", "20ms")
	t.Setenv("HOSTBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("HOSTBRIDGE_HOST", HostMemory)

	path := writeFile(t, "hostbridge.yaml", "bridge:\n  max_attempts: 4\n")
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Bridge.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Bridge.PollInterval)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, HostMemory, cfg.Host.Kind)
}

func TestLoad_DefaultPath(t *testing.T) {
	old := DefaultPath
	DefaultPath = writeFile(t, "hostbridge.yaml", `
bridge:
  poll_interval: 100ms
  max_attempts: 4
  poll_multiplier: 2
  max_poll_interval: 300ms
`)
	t.Cleanup(func() { DefaultPath = old })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Bridge.PollMultiplier)
	assert.Equal(t, 300*time.Millisecond, cfg.Runtime().MaxPollInterval)
	// 100 + 200 + 300 + 300
	assert.Equal(t, 900*time.Millisecond, cfg.ResolveWindow())
}

func TestLoadFromPath_Malformed(t *testing.T) {
	path := writeFile(t, "bad.yaml", "bridge: [\n")
	_, err := LoadFromPath(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"zero interval", func(c *Config) { c.Bridge.PollInterval = 0 }, "poll_interval"},
		{"zero attempts", func(c *Config) { c.Bridge.MaxAttempts = 0 }, "max_attempts"},
		{"zero buffer", func(c *Config) { c.Bridge.EventBufferSize = 0 }, "event_buffer_size"},
		{"negative multiplier", func(c *Config) { c.Bridge.PollMultiplier = -2 }, "poll_multiplier"},
		{"unknown host", func(c *Config) { c.Host.Kind = "carrier-pigeon" }, "unknown host.kind"},
		{"goja without script", func(c *Config) { c.Host.Kind = HostGoja }, "host.script"},
		{"websocket without url", func(c *Config) { c.Host.Kind = HostWebSocket }, "host.url"},
		{"bad relay", func(c *Config) {
			c.Relays = []relay.Rule{{Object: "OriginIGO", Signal: "stateChanged"}}
		}, "relays[0]"},
		{"bad relay filter", func(c *Config) {
			c.Relays = []relay.Rule{{Object: "OriginIGO", Signal: "stateChanged", Event: "X", When: "payload =="}}
		}, "relays[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	require.NoError(t, DefaultConfig().Validate())
}
