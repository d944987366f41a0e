package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
	assert.Same(t, belief.Default(), cfg.Tables())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
database: /tmp/p.db
generator:
  kind: grpc
  addr: gen:9000
  timeout: 5s
kafka:
  brokers: [k1:9092]
  types: [conversion]
decay:
  enabled: true
  interval_hours: 6
belief:
  coupling_strength: 0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/p.db", cfg.Database)
	assert.Equal(t, GeneratorGRPC, cfg.Generator.Kind)
	assert.Equal(t, 5*time.Second, cfg.GeneratorTimeout())
	assert.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "persuasion.events", cfg.Kafka.Topic)
	assert.Equal(t, 6*time.Hour, cfg.DecayInterval())
	assert.Equal(t, 10*time.Second, cfg.FlushInterval())

	tables := cfg.Tables()
	assert.Zero(t, tables.CouplingStrength)
	assert.NotZero(t, belief.Default().CouplingStrength)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PERSUASION_DB", "env.db")
	t.Setenv("GENERATOR_KIND", "grpc")
	t.Setenv("GENERATOR_ADDR", "env:1")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2,")
	t.Setenv("ENABLE_DECAY", "true")
	t.Setenv("DECAY_INTERVAL_HOURS", "12")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database)
	assert.Equal(t, "env:1", cfg.Generator.Addr)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Decay.Enabled)
	assert.Equal(t, 12*time.Hour, cfg.DecayInterval())
	assert.Equal(t, "debug", cfg.Logging.Level)

	t.Run("bad bool", func(t *testing.T) {
		t.Setenv("ENABLE_DECAY", "sometimes")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("bad hours", func(t *testing.T) {
		t.Setenv("DECAY_INTERVAL_HOURS", "daily")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	strong := 1.5
	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"no database", func(c *Config) { c.Database = "" }},
		{"unknown generator", func(c *Config) { c.Generator.Kind = "openai" }},
		{"grpc without addr", func(c *Config) { c.Generator.Kind = GeneratorGRPC; c.Generator.Addr = "" }},
		{"grpc-stream without addr", func(c *Config) { c.Generator.Kind = GeneratorGRPCStream; c.Generator.Addr = "" }},
		{"bad timeout", func(c *Config) { c.Generator.Timeout = "soon" }},
		{"decay without interval", func(c *Config) { c.Decay.Enabled = true; c.Decay.IntervalHours = 0 }},
		{"bad flush interval", func(c *Config) { c.EventLog.FlushInterval = "often" }},
		{"coupling out of range", func(c *Config) { c.Belief.CouplingStrength = &strong }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsStreamingGenerator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generator.Kind = GeneratorGRPCStream
	cfg.Generator.Addr = "localhost:50051"
	require.NoError(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Kafka.Brokers = []string{"k:9092"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
