// Package config loads the core's configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Config holds all tunables for the storage and ingestion core.
type Config struct {
	// DataPath is the SQLite database file location.
	DataPath string `env:"IMPACT_DB_PATH" envDefault:"impact.db"`

	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text).
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Impact severity thresholds in g. They must be strictly increasing.
	MildG     float64 `env:"IMPACT_MILD_G" envDefault:"40"`
	ModerateG float64 `env:"IMPACT_MODERATE_G" envDefault:"60"`
	SevereG   float64 `env:"IMPACT_SEVERE_G" envDefault:"90"`

	// MetricsAddr is where the dev harness serves Prometheus metrics.
	// Empty disables the metrics listener.
	MetricsAddr string `env:"METRICS_ADDR" envDefault:""`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if !(cfg.MildG > 0 && cfg.MildG < cfg.ModerateG && cfg.ModerateG < cfg.SevereG) {
		return Config{}, fmt.Errorf("impact thresholds must be strictly increasing: %v < %v < %v",
			cfg.MildG, cfg.ModerateG, cfg.SevereG)
	}
	return cfg, nil
}
