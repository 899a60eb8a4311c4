package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/VibeTensor/attestix/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns spec defaults when no
// environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STORE_DIR", "")
	t.Setenv("PROFILES_DIR", "")
	t.Setenv("UNIVERSAL_RESOLVER_URL", "")
	t.Setenv("DEFAULT_EXPIRY_DAYS", "")
	t.Setenv("ANCHORING_DISABLED", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "./data", cfg.StoreDir)
	assert.Equal(t, "./profiles", cfg.ProfilesDir)
	assert.Equal(t, "https://dev.uniresolver.io/1.0/identifiers/", cfg.UniversalResolverURL)
	assert.Equal(t, 365, cfg.DefaultExpiryDays)
	assert.False(t, cfg.AnchoringDisabled)
	assert.EqualValues(t, 8453, cfg.LedgerChainID)
}

// TestLoad_Overrides verifies that environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("UNIVERSAL_RESOLVER_URL", "https://resolver.internal/identifiers/")
	t.Setenv("DEFAULT_EXPIRY_DAYS", "90")
	t.Setenv("LEDGER_NETWORK", "base")
	t.Setenv("ANCHORING_DISABLED", "true")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "https://resolver.internal/identifiers/", cfg.UniversalResolverURL)
	assert.Equal(t, 90, cfg.DefaultExpiryDays)
	assert.Equal(t, "base", cfg.LedgerNetwork)
	assert.True(t, cfg.AnchoringDisabled)
}

// TestLoad_InvalidExpiryDaysFallsBackToDefault verifies a malformed
// DEFAULT_EXPIRY_DAYS value does not propagate into the config.
func TestLoad_InvalidExpiryDaysFallsBackToDefault(t *testing.T) {
	t.Setenv("DEFAULT_EXPIRY_DAYS", "not-a-number")

	cfg := config.Load()

	assert.Equal(t, 365, cfg.DefaultExpiryDays)
}
