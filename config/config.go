// Package config holds the router's own declarative defaults: rate-limit
// policy, cache TTL, retry policy, and the closed unit-cost table. It is
// intentionally small — the router has no persistent configuration store
// of its own; a host may load a RouterConfig from YAML and otherwise falls
// back to the code defaults below.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig mirrors ratelimit.Config's shape for YAML loading.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// CacheConfig mirrors the cache store's defaults for YAML loading.
type CacheConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// RetryConfig mirrors retry.Policy's shape for YAML loading.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// RouterConfig is the router's full set of declarative defaults.
type RouterConfig struct {
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Cache     CacheConfig      `yaml:"cache"`
	Retry     RetryConfig      `yaml:"retry"`
	UnitCosts map[string]int   `yaml:"unit_costs"`
}

// Default is the router's closed unit-cost table plus its code-level
// defaults for rate-limiting, caching, and retries. A taskType absent from
// UnitCosts falls back to the ceil(totalTokens/100) rule computed by the
// router itself.
func Default() RouterConfig {
	return RouterConfig{
		RateLimit: RateLimitConfig{MaxRequests: 100, Window: time.Hour},
		Cache:     CacheConfig{DefaultTTL: time.Hour},
		Retry:     RetryConfig{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second},
		UnitCosts: map[string]int{
			"agency.scope":    50,
			"agency.proposal": 100,
			"agency.brief":    25,
		},
	}
}

// Load reads a RouterConfig from a YAML file at path, using Default() to
// fill in any field the file omits. A missing file is not an error — the
// code defaults are returned unchanged.
func Load(path string) (RouterConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return RouterConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RouterConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// UnitsFor returns the configured fixed cost for taskType, or ok=false if
// the task is not in the closed table and the router must fall back to
// token-based accounting.
func (c RouterConfig) UnitsFor(taskType string) (int, bool) {
	units, ok := c.UnitCosts[taskType]
	return units, ok
}
