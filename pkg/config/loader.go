package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into cfg, which must be a pointer to a
// struct using `env` / `envDefault` tags.
//
//	type Config struct {
//	    HTTPPort int    `env:"POS_HTTP_PORT" envDefault:"8010"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadWithPrefix behaves like Load but only reads variables starting with
// prefix, e.g. "POS_" so that POS_REDIS_ADDR fills a `env:"REDIS_ADDR"` field.
func LoadWithPrefix(cfg any, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse config (prefix %s): %w", prefix, err)
	}
	return nil
}
