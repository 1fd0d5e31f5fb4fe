// Package config reads process settings from PLANNING_* environment
// variables, after an optional .env file. Domain settings live in the rule
// catalog, not here.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/warp/planning-engine/logging"
)

const Prefix = "PLANNING_"

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string        `env:"PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
		CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	}
	Database struct {
		// ":memory:" keeps everything in process
		Path string `env:"PATH" envDefault:"./data/planning.db"`
	} `envPrefix:"DB_"`
	Catalog struct {
		Path string `env:"PATH" envDefault:"./configs/catalog.yaml"`
	} `envPrefix:"CATALOG_"`
	Fatigue struct {
		// 0 replays the full history
		WindowDays int `env:"WINDOW_DAYS" envDefault:"0"`
	} `envPrefix:"FATIGUE_"`
	Log struct {
		Level  string `env:"LEVEL" envDefault:"info"`
		Format string `env:"FORMAT" envDefault:"console"`
		Output string `env:"OUTPUT" envDefault:"stdout"`
		File   string `env:"FILE"`
	} `envPrefix:"LOG_"`
}

// Load reads ./.env when present, then the environment.
func Load() (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads settings from the given variables only, names including
// the PLANNING_ prefix.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		aggErr := env.AggregateError{}
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			return nil, fmt.Errorf("config: %w", aggErr.Errors[0])
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Fatigue.WindowDays < 0 {
		return fmt.Errorf("%sFATIGUE_WINDOW_DAYS must be >= 0, got %d", Prefix, c.Fatigue.WindowDays)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Logging converts the log settings for logging.New.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = c.Log.Format
	cfg.Output = c.Log.Output
	cfg.FilePath = c.Log.File
	return cfg
}
