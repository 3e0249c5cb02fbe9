package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvOverrides are the process environment settings that take precedence
// over the YAML file. Unset variables leave the file value untouched.
type EnvOverrides struct {
	StorageEnabled  *bool  `envconfig:"ENABLE_MONGODB_STORAGE"`
	MaxWorkers      *int   `envconfig:"TRIALS_MAX_WORKERS"`
	MongoURI        string `envconfig:"MONGODB_URI"`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION"`
	LogLevel        string `envconfig:"TRIALS_LOG_LEVEL"`
	MetricsTextfile string `envconfig:"TRIALS_METRICS_TEXTFILE"`
}

// LoadEnv reads an optional .env file and then the process environment.
func LoadEnv(files ...string) (*EnvOverrides, error) {
	// A missing .env file is the normal case.
	_ = godotenv.Load(files...)

	var env EnvOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return &env, nil
}

// Apply copies every set override into c.
func (e *EnvOverrides) Apply(c *Config) {
	if e.StorageEnabled != nil {
		c.Storage.Enabled = *e.StorageEnabled
	}

	if e.MaxWorkers != nil {
		c.Batch.MaxWorkers = *e.MaxWorkers
	}

	if e.MongoURI != "" {
		c.Storage.URI = e.MongoURI
	}

	if e.MongoDatabase != "" {
		c.Storage.Database = e.MongoDatabase
	}

	if e.MongoCollection != "" {
		c.Storage.Collection = e.MongoCollection
	}

	if e.LogLevel != "" {
		c.Logging.Level = e.LogLevel
	}

	if e.MetricsTextfile != "" {
		c.Metrics.Textfile = e.MetricsTextfile
	}
}

// Load builds the effective configuration: defaults, then the YAML file when
// path is non-empty, then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}

		cfg = fileCfg
	}

	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}

	env.Apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
