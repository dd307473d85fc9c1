package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cacheMu sync.Mutex
	cache   = make(map[reflect.Type]any)

	dotenvOnce sync.Once
)

// Load populates cfg from environment variables using its env struct tags.
// A .env file in the working directory is loaded once per process before the
// first parse. Each configuration type is parsed only once; subsequent calls
// for the same type return the cached value.
func Load(cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("config: Load requires a non-nil pointer, got %T", cfg)
	}

	dotenvOnce.Do(func() {
		// Missing .env is the normal case outside local development.
		_ = godotenv.Load()
	})

	t := v.Elem().Type()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[t]; ok {
		v.Elem().Set(reflect.ValueOf(cached))
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: failed to parse %s from environment: %w", t, err)
	}

	cache[t] = v.Elem().Interface()
	return nil
}

// MustLoad is Load that panics on failure. Useful at startup where a missing
// required variable should stop the process immediately.
func MustLoad(cfg any) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
