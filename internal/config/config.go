// Package config loads runtime configuration from an optional YAML file,
// EVIDENCE_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g.
// EVIDENCE_STORAGE_BACKEND.
const EnvPrefix = "EVIDENCE"

// Config is the complete runtime configuration.
type Config struct {
	Storage  Storage  `mapstructure:"storage"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Log      Log      `mapstructure:"log"`
	Pipeline Pipeline `mapstructure:"pipeline"`
}

// Storage selects the evidence store.
type Storage struct {
	Backend     string        `mapstructure:"backend" validate:"oneof=memory sqlite badger"`
	Path        string        `mapstructure:"path" validate:"required_unless=Backend memory"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl" validate:"gte=0"`
	ListLimit   int           `mapstructure:"list_limit" validate:"gt=0"`
}

// Metrics configures metric computation.
type Metrics struct {
	// Window is how far back from a snapshot's capture drift events count.
	Window time.Duration `mapstructure:"window" validate:"gt=0"`
}

// Log configures logging.
type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// Pipeline configures batch runs.
type Pipeline struct {
	// Parallelism is how many tenants are processed concurrently.
	Parallelism int `mapstructure:"parallelism" validate:"gte=1,lte=256"`

	// MetricsFile, when set, receives a Prometheus text dump after a run.
	MetricsFile string `mapstructure:"metrics_file"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Storage: Storage{
			Backend:   "sqlite",
			Path:      "evidence.db",
			ListLimit: 10000,
		},
		Metrics:  Metrics{Window: 720 * time.Hour},
		Log:      Log{Level: "info", Format: "json"},
		Pipeline: Pipeline{Parallelism: 4},
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"backend":     "storage.backend",
	"db":          "storage.path",
	"parallelism": "pipeline.parallelism",
	"window":      "metrics.window",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

// Load reads configuration. path may be empty. flags may be nil; only
// flags that were set override file and environment values.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.snapshot_ttl", d.Storage.SnapshotTTL)
	v.SetDefault("storage.list_limit", d.Storage.ListLimit)
	v.SetDefault("metrics.window", d.Metrics.Window)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("pipeline.parallelism", d.Pipeline.Parallelism)
	v.SetDefault("pipeline.metrics_file", d.Pipeline.MetricsFile)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
