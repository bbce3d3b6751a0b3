// Package config loads the hostbridge configuration: a YAML or TOML file,
// then a .env file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
	"github.com/R3E-Network/hostbridge/internal/engine/relay"
	"github.com/R3E-Network/hostbridge/pkg/logger"
)

// Host kinds.
const (
	HostNone      = "none"
	HostMemory    = "memory"
	HostGoja      = "goja"
	HostWebSocket = "websocket"
)

// BridgeConfig tunes resolution and diagnostics.
type BridgeConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval" toml:"poll_interval" env:"HOSTBRIDGE_POLL_INTERVAL"`
	MaxAttempts     int           `yaml:"max_attempts" toml:"max_attempts" env:"HOSTBRIDGE_MAX_ATTEMPTS"`
	EventBufferSize int           `yaml:"event_buffer_size" toml:"event_buffer_size" env:"HOSTBRIDGE_EVENT_BUFFER_SIZE"`
	PollMultiplier  float64       `yaml:"poll_multiplier" toml:"poll_multiplier" env:"HOSTBRIDGE_POLL_MULTIPLIER"`
	MaxPollInterval time.Duration `yaml:"max_poll_interval" toml:"max_poll_interval" env:"HOSTBRIDGE_MAX_POLL_INTERVAL"`
}

// HostConfig selects where remote objects come from.
type HostConfig struct {
	Kind             string        `yaml:"kind" toml:"kind" env:"HOSTBRIDGE_HOST"`
	Script           string        `yaml:"script" toml:"script" env:"HOSTBRIDGE_HOST_SCRIPT"`
	URL              string        `yaml:"url" toml:"url" env:"HOSTBRIDGE_HOST_URL"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" toml:"handshake_timeout" env:"HOSTBRIDGE_HANDSHAKE_TIMEOUT"`
}

// MetricsConfig controls the status server.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" toml:"namespace" env:"HOSTBRIDGE_METRICS_NAMESPACE"`
	Listen    string `yaml:"listen" toml:"listen" env:"HOSTBRIDGE_LISTEN"`
}

// Config is the full configuration.
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge" toml:"bridge"`
	Host    HostConfig    `yaml:"host" toml:"host"`
	Logging logger.Config `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Relays  []relay.Rule  `yaml:"relays" toml:"relays"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	rc := bridge.DefaultRuntimeConfig()
	return &Config{
		Bridge: BridgeConfig{
			PollInterval:    rc.PollInterval,
			MaxAttempts:     rc.MaxAttempts,
			EventBufferSize: rc.EventBufferSize,
		},
		Host: HostConfig{
			Kind:             HostNone,
			HandshakeTimeout: 10 * time.Second,
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: rc.MetricsNamespace,
			Listen:    ":9470",
		},
	}
}

// DefaultPath is the config file Load reads.
var DefaultPath = filepath.Join("config", "hostbridge.yaml")

// Load reads DefaultPath if present, then the environment.
func Load() (*Config, error) {
	return LoadFromPath(DefaultPath)
}

// LoadFromPath reads path (YAML, or TOML for a .toml extension) over the
// defaults, loads .env from the working directory, and applies environment
// overrides. A missing file is not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return nil
}

// Validate rejects values the runtime cannot use.
func (c *Config) Validate() error {
	if c.Bridge.PollInterval <= 0 {
		return fmt.Errorf("bridge.poll_interval must be positive, got %s", c.Bridge.PollInterval)
	}
	if c.Bridge.MaxAttempts < 1 {
		return fmt.Errorf("bridge.max_attempts must be at least 1, got %d", c.Bridge.MaxAttempts)
	}
	if c.Bridge.PollMultiplier < 0 {
		return fmt.Errorf("bridge.poll_multiplier must not be negative, got %g", c.Bridge.PollMultiplier)
	}
	if c.Bridge.EventBufferSize < 1 {
		return fmt.Errorf("bridge.event_buffer_size must be at least 1, got %d", c.Bridge.EventBufferSize)
	}

	switch c.Host.Kind {
	case HostNone, HostMemory:
	case HostGoja:
		if c.Host.Script == "" {
			return errors.New("host.script is required for the goja host")
		}
	case HostWebSocket:
		if c.Host.URL == "" {
			return errors.New("host.url is required for the websocket host")
		}
	default:
		return fmt.Errorf("unknown host.kind %q", c.Host.Kind)
	}

	for i, r := range c.Relays {
		if _, err := r.Compile(); err != nil {
			return fmt.Errorf("relays[%d]: %w", i, err)
		}
	}
	return nil
}

// Runtime returns the bridge runtime settings.
func (c *Config) Runtime() bridge.RuntimeConfig {
	return bridge.RuntimeConfig{
		PollInterval:     c.Bridge.PollInterval,
		MaxAttempts:      c.Bridge.MaxAttempts,
		EventBufferSize:  c.Bridge.EventBufferSize,
		MetricsNamespace: c.Metrics.Namespace,
		PollMultiplier:   c.Bridge.PollMultiplier,
		MaxPollInterval:  c.Bridge.MaxPollInterval,
	}
}

// ResolveWindow is how long an object may take to appear before it is
// reported unavailable.
func (c *Config) ResolveWindow() time.Duration {
	if c.Bridge.PollMultiplier <= 1 {
		return time.Duration(c.Bridge.MaxAttempts) * c.Bridge.PollInterval
	}
	maxInterval := c.Bridge.MaxPollInterval
	if maxInterval < c.Bridge.PollInterval {
		maxInterval = c.Bridge.PollInterval
	}
	var window time.Duration
	next := c.Bridge.PollInterval
	for i := 0; i < c.Bridge.MaxAttempts; i++ {
		window += next
		next = time.Duration(float64(next) * c.Bridge.PollMultiplier)
		if next > maxInterval {
			next = maxInterval
		}
	}
	return window
}
