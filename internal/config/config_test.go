// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, int64(4), cfg.Browser.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 5*time.Second, cfg.Browser.HydrationWait)
	assert.Equal(t, 2*time.Second, cfg.Download.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.Download.PollTimeout)
	assert.Equal(t, int64(10*1024), cfg.Download.MinSize)
	assert.Equal(t, 20, cfg.Extract.CarouselMaxSlides)
	assert.Equal(t, DefaultCarouselSelectors(), cfg.Extract.CarouselSelectors)
	assert.Equal(t, 60*time.Second, cfg.Extract.YouTubeScanWindow)
	assert.NotEmpty(t, cfg.Download.Dir)
	assert.Contains(t, cfg.Browser.UserAgent, "Chrome/")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate(), "a default config should validate cleanly")

	t.Run("invalid browser concurrency", func(t *testing.T) {
		bad := *cfg
		bad.Browser.Concurrency = 0
		err := bad.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.concurrency")
	})

	t.Run("missing server addr", func(t *testing.T) {
		bad := *cfg
		bad.Server.Addr = ""
		err := bad.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.addr")
	})

	t.Run("poll interval must undercut timeout", func(t *testing.T) {
		bad := *cfg
		bad.Download.PollInterval = bad.Download.PollTimeout
		err := bad.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "poll_interval")
	})

	t.Run("zero carousel budget", func(t *testing.T) {
		bad := *cfg
		bad.Extract.CarouselMaxSlides = 0
		require.Error(t, bad.Validate())
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	yaml := []byte(`
server:
  addr: ":9090"
browser:
  concurrency: 2
  navigation_timeout: 10s
download:
  poll_interval: 1s
  poll_timeout: 30s
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(yaml)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, int64(2), cfg.Browser.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 30*time.Second, cfg.Download.PollTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Browser.HydrationWait)
}

func TestHeadlessEnvOverride(t *testing.T) {
	t.Setenv("HEADLESS", "false")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Headless)
}
