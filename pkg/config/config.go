// Package config centralizes runtime configuration for the userdesk engine
// and CLI. Values load from defaults, then environment variables, then
// explicit overrides, with struct-tag validation at the end.
package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"
)

// Config is the root configuration tree.
type Config struct {
	Client  ClientConfig  `koanf:"client"`
	Feed    FeedConfig    `koanf:"feed"`
	Session SessionConfig `koanf:"session"`
	Runtime RuntimeConfig `koanf:"runtime"`
}

// ClientConfig configures the HTTP client for the admin backend.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.example.com/api/v1.
	BaseURL string `koanf:"base_url" validate:"required,url"`
	// APIKey authenticates as an admin. Required against real backends.
	APIKey string `koanf:"api_key"`
	// Timeout bounds each request.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// PageRetries is the extra attempts for a failed page fetch.
	PageRetries uint64 `koanf:"page_retries" validate:"lte=10"`
	// PageRetryBase seeds the backoff between page attempts.
	PageRetryBase time.Duration `koanf:"page_retry_base"`
	// Debug logs requests and responses.
	Debug bool `koanf:"debug"`
}

// FeedConfig configures pagination.
type FeedConfig struct {
	// PageSize is the number of users per fetched page.
	PageSize int `koanf:"page_size" validate:"gt=0,lte=500"`
	// Prefetch enables speculative next-page fetches on hover.
	Prefetch bool `koanf:"prefetch"`
	// PrefetchCacheSize caps the cached speculative pages.
	PrefetchCacheSize int `koanf:"prefetch_cache_size" validate:"gte=0"`
}

// SessionConfig configures UI session behavior.
type SessionConfig struct {
	// TabDebounceWait is the quiet window before the tab-transition flag
	// clears.
	TabDebounceWait time.Duration `koanf:"tab_debounce_wait" validate:"gt=0"`
	// TabDebounceMaxWait bounds how long rapid tab switching can keep the
	// flag up.
	TabDebounceMaxWait time.Duration `koanf:"tab_debounce_max_wait" validate:"gt=0"`
}

// RuntimeConfig configures process-level concerns.
type RuntimeConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	// LogJSON switches the log output to JSON.
	LogJSON bool `koanf:"log_json"`
	// StrictInvariants panics on invariant violations instead of logging
	// them. Meant for tests and development.
	StrictInvariants bool `koanf:"strict_invariants"`
	// MetricsEnabled registers Prometheus collectors.
	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			BaseURL:       "http://localhost:8080/api/v1",
			Timeout:       10 * time.Second,
			PageRetries:   2,
			PageRetryBase: 200 * time.Millisecond,
		},
		Feed: FeedConfig{
			PageSize:          25,
			Prefetch:          true,
			PrefetchCacheSize: 8,
		},
		Session: SessionConfig{
			TabDebounceWait:    100 * time.Millisecond,
			TabDebounceMaxWait: time.Second,
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
		},
	}
}

// Merge overlays src onto c. Non-zero fields of src win; zero fields keep
// c's value. Used to apply CLI flag overrides on top of the loaded tree.
func (c *Config) Merge(src *Config) error {
	if src == nil {
		return nil
	}
	if err := mergo.Merge(c, src, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config override: %w", err)
	}
	return nil
}
