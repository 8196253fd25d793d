package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestFileEnvAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: badger
  path: /var/lib/evidence
  snapshot_ttl: 2160h
metrics:
  window: 168h
pipeline:
  parallelism: 2
log:
  level: debug
`), 0o600))

	t.Setenv("EVIDENCE_PIPELINE_PARALLELISM", "8")
	t.Setenv("EVIDENCE_LOG_FORMAT", "console")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("backend", "", "")
	flags.String("db", "", "")
	flags.Int("parallelism", 0, "")
	require.NoError(t, flags.Parse([]string{"--parallelism=3"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/evidence", cfg.Storage.Path)
	assert.Equal(t, 2160*time.Hour, cfg.Storage.SnapshotTTL)
	assert.Equal(t, 168*time.Hour, cfg.Metrics.Window)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format, "env overrides default")
	assert.Equal(t, 3, cfg.Pipeline.Parallelism, "flag overrides env and file")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }},
		{"zero window", func(c *Config) { c.Metrics.Window = 0 }},
		{"zero parallelism", func(c *Config) { c.Pipeline.Parallelism = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }},
		{"negative ttl", func(c *Config) { c.Storage.SnapshotTTL = -time.Second }},
		{"zero list limit", func(c *Config) { c.Storage.ListLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Defaults()
	cfg.Storage.Backend = "memory"
	cfg.Storage.Path = ""
	assert.NoError(t, cfg.Validate(), "memory needs no path")
}

func TestEnvSelectsBackend(t *testing.T) {
	t.Setenv("EVIDENCE_STORAGE_BACKEND", "memory")
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}
