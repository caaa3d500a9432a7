package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWhenUnset(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "chatpay-core", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 30, cfg.RateLimit.PerMinute)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("APP_NAME", "chatpay-staging")
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "10")
	t.Setenv("LEDGER_NETWORK", "mainnet")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "chatpay-staging", cfg.App.Name)
	assert.Equal(t, "staging", cfg.App.Environment)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 10, cfg.RateLimit.PerMinute)
	assert.Equal(t, "mainnet", cfg.Ledger.Network)
}
