// Package config loads the runtime configuration for a single node: its
// worker pool size, debug level, cluster peer list, and the ambient
// observability knobs carried alongside every config struct in this
// codebase's lineage.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`      // Default: false
	Exporter    string  `yaml:"exporter"`     // otlp-http, stdout
	Endpoint    string  `yaml:"endpoint"`     // localhost:4318
	ServiceName string  `yaml:"service_name"` // parsec
	SampleRate  float64 `yaml:"sample_rate"`  // 1.0
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`   // Default: true
	Addr      string `yaml:"addr"`      // :9090
	Namespace string `yaml:"namespace"` // parsec
}

// LoggingConfig holds structured logging settings for the Op() slog
// pipeline. The hot-path debug line channel (DebugLevel) is configured
// separately since it is not a structured-logging concern.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// FishingConfig bounds the randomized backoff a worker sleeps between
// consecutive FISH messages once it has gone idle. MaxFish is read from
// the config file but is not passed to the runtime, so fishing is not
// limited by it.
type FishingConfig struct {
	BackoffMin time.Duration `yaml:"backoff_min"` // 1ms
	BackoffMax time.Duration `yaml:"backoff_max"` // 50ms
	MaxFish    int           `yaml:"max_fish"`    // 0 = unlimited
}

// HeartbeatConfig drives the liveness check used to flag a peer
// PeerUnreachable before a QUIESCE round would otherwise stall on it.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"` // 1s
	Timeout  time.Duration `yaml:"timeout"`  // 5s
}

// ChaosConfig optionally injects synthetic node failures for exercising the
// fault-tolerance path without a real multi-machine cluster.
type ChaosConfig struct {
	Enabled     bool          `yaml:"enabled"`
	KillAfter   time.Duration `yaml:"kill_after"`
	KillTargets []string      `yaml:"kill_targets"` // node ids eligible to be killed

	// DropProb/MaxDelay drive the comm-layer outbound middleware
	// (comm.EnableChaos): every envelope this node sends has probability
	// DropProb of being dropped outright, and otherwise sleeps up to
	// MaxDelay before going out. Independent of KillAfter/KillTargets,
	// which simulate a full node crash rather than lossy links.
	DropProb float64       `yaml:"drop_prob"`
	MaxDelay time.Duration `yaml:"max_delay"`
}

// Config is the full runtime configuration for one node in the cluster.
type Config struct {
	NodeID     string   `yaml:"node_id"`
	Peers      []string `yaml:"peers"`       // all node addresses, main node first
	NumWorkers int      `yaml:"num_workers"` // 0 = runtime.NumCPU()
	DebugLevel int      `yaml:"debug_level"` // 0-9, see internal/logging

	Fishing   FishingConfig   `yaml:"fishing"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Chaos     ChaosConfig     `yaml:"chaos"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DefaultConfig returns the configuration a single-node, zero-config run
// starts from: one node, one worker per CPU, no tracing, metrics on a local
// port, debug level off. NodeID is a fresh UUID so a bare "parsec run" with
// no --config never collides with another bare run on the same machine;
// LoadFromFile/LoadFromEnv overwrite it whenever one is explicitly set.
func DefaultConfig() *Config {
	return &Config{
		NodeID:     uuid.NewString(),
		NumWorkers: 0,
		DebugLevel: 0,
		Fishing: FishingConfig{
			BackoffMin: time.Millisecond,
			BackoffMax: 50 * time.Millisecond,
			MaxFish:    0,
		},
		Heartbeat: HeartbeatConfig{
			Interval: time.Second,
			Timeout:  5 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "parsec",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Addr:      ":9090",
			Namespace: "parsec",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile reads a YAML config file, starting from DefaultConfig and
// overlaying whatever the file sets.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv overlays PARSEC_* environment variables onto cfg, mirroring
// the shape of a YAML file for operators who prefer env-based deployment.
func LoadFromEnv(cfg *Config) *Config {
	if v := os.Getenv("PARSEC_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("PARSEC_PEERS"); v != "" {
		cfg.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv("PARSEC_NUM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NumWorkers = n
		}
	}
	if v := os.Getenv("PARSEC_DEBUG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DebugLevel = n
		}
	}
	if v := os.Getenv("PARSEC_CHAOS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Chaos.Enabled = b
		}
	}
	if v := os.Getenv("PARSEC_TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = b
		}
	}
	if v := os.Getenv("PARSEC_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("PARSEC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("PARSEC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PARSEC_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return cfg
}

// Validate checks invariants LoadFromFile/LoadFromEnv cannot enforce via
// struct tags alone.
func (c *Config) Validate() error {
	if c.NumWorkers < 0 {
		return fmt.Errorf("config: num_workers must be >= 0, got %d", c.NumWorkers)
	}
	if c.DebugLevel < 0 || c.DebugLevel > 9 {
		return fmt.Errorf("config: debug_level must be 0-9, got %d", c.DebugLevel)
	}
	if c.Fishing.BackoffMin <= 0 || c.Fishing.BackoffMax < c.Fishing.BackoffMin {
		return fmt.Errorf("config: fishing backoff bounds invalid (min=%s max=%s)",
			c.Fishing.BackoffMin, c.Fishing.BackoffMax)
	}
	return nil
}
