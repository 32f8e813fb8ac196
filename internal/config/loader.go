// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is the diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the configuration. Extra dotenv files may be
// named explicitly; a missing default .env is ignored, but a missing named
// file is an error.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	time.Local = time.UTC

	if len(dotenvFiles) == 0 {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Type: ErrDotenv, Message: "failed to read .env", Err: err}
		}
	} else if err := godotenv.Load(dotenvFiles...); err != nil {
		return nil, &ConfigError{Type: ErrDotenv, Message: "failed to read dotenv files", Err: err}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}
