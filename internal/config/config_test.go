package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretStringRedaction(t *testing.T) {
	secret := SecretString("$2a$10$abcdefghijklmnopqrstuv")

	assert.Equal(t, "***REDACTED***", secret.String())
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%v", secret))
	assert.Equal(t, "$2a$10$abcdefghijklmnopqrstuv", secret.Unmask())

	cfg := Config{Admin: AdminConfig{APIKeyHash: secret}}
	data, err := json.Marshal(cfg.Admin)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abcdefghijklmnop")
}

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "none", info.Commit)
	assert.Equal(t, "unknown", info.BuildTime)
}

func TestConfigError(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := &ConfigError{Type: ErrParsing, Message: "bad value", Err: inner}
	assert.Equal(t, "[PARSING_FAILED] bad value: boom", err.Error())
	assert.ErrorIs(t, err, inner)

	bare := &ConfigError{Type: ErrValidation, Message: "missing"}
	assert.Equal(t, "[VALIDATION_FAILED] missing", bare.Error())
}

func TestIsLocal(t *testing.T) {
	assert.True(t, (&Config{Environment: "local"}).IsLocal())
	assert.False(t, (&Config{Environment: "prod"}).IsLocal())
}
