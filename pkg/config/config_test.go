package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	t.Run("Should return valid defaults", func(t *testing.T) {
		cfg, err := Load(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 25, cfg.Feed.PageSize)
		assert.True(t, cfg.Feed.Prefetch)
		assert.Equal(t, 10*time.Second, cfg.Client.Timeout)
		assert.Equal(t, "info", cfg.Runtime.LogLevel)
	})
	t.Run("Should read environment overrides", func(t *testing.T) {
		t.Setenv("USERDESK_FEED_PAGE_SIZE", "50")
		t.Setenv("USERDESK_CLIENT_TIMEOUT", "3s")
		t.Setenv("USERDESK_RUNTIME_LOG_LEVEL", "debug")
		cfg, err := Load(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Feed.PageSize)
		assert.Equal(t, 3*time.Second, cfg.Client.Timeout)
		assert.Equal(t, "debug", cfg.Runtime.LogLevel)
	})
	t.Run("Should let an explicit override win over the environment", func(t *testing.T) {
		t.Setenv("USERDESK_FEED_PAGE_SIZE", "50")
		cfg, err := Load(ctx, &Config{Feed: FeedConfig{PageSize: 100}})
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Feed.PageSize)
	})
	t.Run("Should reject an invalid log level", func(t *testing.T) {
		t.Setenv("USERDESK_RUNTIME_LOG_LEVEL", "loud")
		_, err := Load(ctx, nil)
		assert.Error(t, err)
	})
	t.Run("Should reject a page size beyond the cap", func(t *testing.T) {
		t.Setenv("USERDESK_FEED_PAGE_SIZE", "10000")
		_, err := Load(ctx, nil)
		assert.Error(t, err)
	})
	t.Run("Should reject an inverted debounce window", func(t *testing.T) {
		t.Setenv("USERDESK_SESSION_TAB_DEBOUNCE_WAIT", "2s")
		t.Setenv("USERDESK_SESSION_TAB_DEBOUNCE_MAX_WAIT", "1s")
		_, err := Load(ctx, nil)
		assert.Error(t, err)
	})
}

func TestTransformEnvKey(t *testing.T) {
	t.Run("Should map section and field", func(t *testing.T) {
		assert.Equal(t, "client.base_url", transformEnvKey("CLIENT_BASE_URL"))
		assert.Equal(t, "feed.page_size", transformEnvKey("FEED_PAGE_SIZE"))
		assert.Equal(t, "session.tab_debounce_max_wait", transformEnvKey("SESSION_TAB_DEBOUNCE_MAX_WAIT"))
	})
	t.Run("Should tolerate degenerate names", func(t *testing.T) {
		assert.Equal(t, "", transformEnvKey(""))
		assert.Equal(t, "debug", transformEnvKey("DEBUG"))
		assert.Equal(t, "client.debug", transformEnvKey("CLIENT__DEBUG"))
	})
}

func TestMerge(t *testing.T) {
	t.Run("Should keep base values for zero override fields", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.Merge(&Config{Client: ClientConfig{APIKey: "secret"}}))
		assert.Equal(t, "secret", cfg.Client.APIKey)
		assert.Equal(t, 25, cfg.Feed.PageSize)
	})
	t.Run("Should no-op on a nil override", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.Merge(nil))
		assert.Equal(t, Default(), cfg)
	})
}
