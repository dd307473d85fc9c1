// Package config provides type-safe environment variable loading with
// caching. Each configuration type is loaded once and cached for subsequent
// calls.
//
// The package automatically loads .env files on first use and uses the
// caarlos0/env library for parsing environment variables into struct fields.
//
// Basic usage:
//
//	type BrokerConfig struct {
//		Endpoint        string `env:"CFGDB_COMMAND_ENDPOINT" envDefault:"cfgdb.commands"`
//		Workers         int    `env:"CFGDB_COMMAND_WORKERS" envDefault:"4"`
//		MaxRedeliveries int    `env:"CFGDB_MAX_REDELIVERIES" envDefault:"3"`
//	}
//
//	var cfg BrokerConfig
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	// Or panic on failure (useful for startup)
//	config.MustLoad(&cfg)
//
// Each configuration type is loaded only once per application lifetime;
// different types are cached independently.
package config
