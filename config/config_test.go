package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appdistillery/brain/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)

	units, ok := cfg.UnitsFor("agency.proposal")
	assert.True(t, ok)
	assert.Equal(t, 100, units)

	_, ok = cfg.UnitsFor("agency.unknown")
	assert.False(t, ok)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_OverridesOnlySpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.yaml")
	contents := "rate_limit:\n  max_requests: 10\n  window: 1m\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	// Untouched sections keep their code defaults.
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)
	units, ok := cfg.UnitsFor("agency.scope")
	assert.True(t, ok)
	assert.Equal(t, 50, units)
}

func TestLoad_InvalidYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
