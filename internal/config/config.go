// Package config loads settings structs from the environment. A .env
// file in the working directory is folded in first; real environment
// variables always win.
package config

import (
	"errors"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrParsingConfig is returned when environment variables cannot be
// parsed into the settings struct.
var ErrParsingConfig = errors.New("failed to parse environment variables into config")

var dotEnvLoaded sync.Once

// Load parses environment variables into a fresh T based on its env
// struct tags.
//
// Example:
//
//	type settings struct {
//		BindAddr string `env:"THROTTLER_BIND_ADDR" envDefault:"0.0.0.0:8080"`
//	}
//
//	s, err := config.Load[settings]()
func Load[T any]() (T, error) {
	dotEnvLoaded.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	var v T
	if err := env.Parse(&v); err != nil {
		return v, errors.Join(ErrParsingConfig, err)
	}
	return v, nil
}
