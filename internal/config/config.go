// Package config loads controller settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// Generator kinds.
const (
	GeneratorMock       = "mock"
	GeneratorGRPC       = "grpc"
	GeneratorGRPCStream = "grpc-stream"
)

// Config holds all controller configuration.
type Config struct {
	// Database is the SQLite file for targets, snapshots and the event log.
	Database string `yaml:"database"`

	Logging   LoggingConfig   `yaml:"logging"`
	Generator GeneratorConfig `yaml:"generator"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Decay     DecayConfig     `yaml:"decay"`
	EventLog  EventLogConfig  `yaml:"event_log"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Belief    BeliefConfig    `yaml:"belief"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// GeneratorConfig selects the text generator.
type GeneratorConfig struct {
	Kind    string `yaml:"kind"` // mock, grpc, grpc-stream
	Addr    string `yaml:"addr"`
	Timeout string `yaml:"timeout"`
}

// KafkaConfig enables the audit sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic"`

	// Types limits forwarding to these event types; empty forwards all.
	Types []string `yaml:"types,omitempty"`
}

// DecayConfig drives the periodic belief decay job.
type DecayConfig struct {
	Enabled       bool    `yaml:"enabled"`
	IntervalHours float64 `yaml:"interval_hours"`
}

// EventLogConfig tunes the persistent event log.
type EventLogConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BufferSize    int    `yaml:"buffer_size"`
	FlushInterval string `yaml:"flush_interval"`
}

// TrackerConfig tunes the conversion tracker.
type TrackerConfig struct {
	MaxHistory int `yaml:"max_history"`
}

// BeliefConfig overrides model constants. Nil keeps the built-in value.
type BeliefConfig struct {
	CouplingStrength *float64 `yaml:"coupling_strength,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: "persuasion_state.db",
		Logging: LoggingConfig{
			Level: "info",
		},
		Generator: GeneratorConfig{
			Kind:    GeneratorMock,
			Addr:    "localhost:50051",
			Timeout: "30s",
		},
		Kafka: KafkaConfig{
			Topic: "persuasion.events",
		},
		Decay: DecayConfig{
			Enabled:       false,
			IntervalHours: 24,
		},
		EventLog: EventLogConfig{
			Enabled:       true,
			BufferSize:    100,
			FlushInterval: "10s",
		},
		Tracker: TrackerConfig{
			MaxHistory: 100,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file or empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PERSUASION_DB"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("GENERATOR_KIND"); v != "" {
		c.Generator.Kind = v
	}
	if v := os.Getenv("GENERATOR_ADDR"); v != "" {
		c.Generator.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if v := os.Getenv("ENABLE_DECAY"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENABLE_DECAY: %w", err)
		}
		c.Decay.Enabled = on
	}
	if v := os.Getenv("DECAY_INTERVAL_HOURS"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DECAY_INTERVAL_HOURS: %w", err)
		}
		c.Decay.IntervalHours = h
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path not configured (set PERSUASION_DB)")
	}
	switch c.Generator.Kind {
	case GeneratorMock:
	case GeneratorGRPC, GeneratorGRPCStream:
		if c.Generator.Addr == "" {
			return fmt.Errorf("grpc generator requires an address (set GENERATOR_ADDR)")
		}
	default:
		return fmt.Errorf("invalid generator kind: %s (valid: %s, %s, %s)", c.Generator.Kind, GeneratorMock, GeneratorGRPC, GeneratorGRPCStream)
	}
	if _, err := time.ParseDuration(c.Generator.Timeout); c.Generator.Timeout != "" && err != nil {
		return fmt.Errorf("invalid generator timeout %q: %w", c.Generator.Timeout, err)
	}
	if c.Decay.Enabled && c.Decay.IntervalHours <= 0 {
		return fmt.Errorf("decay interval must be positive, got %v hours", c.Decay.IntervalHours)
	}
	if _, err := time.ParseDuration(c.EventLog.FlushInterval); c.EventLog.FlushInterval != "" && err != nil {
		return fmt.Errorf("invalid event log flush interval %q: %w", c.EventLog.FlushInterval, err)
	}
	if s := c.Belief.CouplingStrength; s != nil && (*s < 0 || *s > 1) {
		return fmt.Errorf("coupling strength must be within [0, 1], got %v", *s)
	}
	return nil
}

// GeneratorTimeout returns the per-call generation timeout.
func (c *Config) GeneratorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generator.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// DecayInterval returns the decay job period.
func (c *Config) DecayInterval() time.Duration {
	return time.Duration(c.Decay.IntervalHours * float64(time.Hour))
}

// FlushInterval returns the event log flush period.
func (c *Config) FlushInterval() time.Duration {
	d, err := time.ParseDuration(c.EventLog.FlushInterval)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Tables returns the model tables with any configured overrides applied.
func (c *Config) Tables() *belief.Tables {
	if c.Belief.CouplingStrength == nil {
		return belief.Default()
	}
	t := *belief.Default()
	t.CouplingStrength = *c.Belief.CouplingStrength
	return &t
}
