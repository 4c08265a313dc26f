// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Extract  ExtractConfig  `mapstructure:"extract" yaml:"extract"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
}

// LoggerConfig controls the zap logger and its file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// BrowserConfig controls how browser sessions are created.
type BrowserConfig struct {
	// Headless is the default rendering mode. The HEADLESS environment
	// variable overrides it: "true" forces headless everywhere, anything
	// else permits a visible window only where a caller asks for one.
	Headless    bool  `mapstructure:"headless" yaml:"headless"`
	Concurrency int64 `mapstructure:"concurrency" yaml:"concurrency"`
	// ExecPath overrides Chrome binary discovery; empty means auto-detect.
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	HydrationWait     time.Duration `mapstructure:"hydration_wait" yaml:"hydration_wait"`
}

// DownloadConfig controls browser driven downloads.
type DownloadConfig struct {
	Dir          string        `mapstructure:"dir" yaml:"dir"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	// MinSize is the smallest file accepted as a finished download.
	// Anything below it is treated as an error page the CDN served instead.
	MinSize int64 `mapstructure:"min_size" yaml:"min_size"`
}

// ExtractConfig tunes the per-platform extraction strategies.
type ExtractConfig struct {
	CarouselMaxSlides  int           `mapstructure:"carousel_max_slides" yaml:"carousel_max_slides"`
	CarouselClickRetry int           `mapstructure:"carousel_click_retry" yaml:"carousel_click_retry"`
	CarouselRetryWait  time.Duration `mapstructure:"carousel_retry_wait" yaml:"carousel_retry_wait"`
	CarouselSettleWait time.Duration `mapstructure:"carousel_settle_wait" yaml:"carousel_settle_wait"`
	// CarouselSelectors locate the carousel's Next control, tried in order.
	// Platform markup changes regularly; new selectors go here, not in code.
	CarouselSelectors []string      `mapstructure:"carousel_selectors" yaml:"carousel_selectors"`
	YouTubeScanWindow time.Duration `mapstructure:"youtube_scan_window" yaml:"youtube_scan_window"`
}

// DefaultCarouselSelectors returns the built-in Next-control selector list.
func DefaultCarouselSelectors() []string {
	return []string{
		"button[aria-label='Next']",
		"button[aria-label='next']",
		"svg[aria-label='Next']",
	}
}

// FetchConfig controls the direct HTTP download path.
type FetchConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "clipfetch")
	v.SetDefault("logger.log_file", "clipfetch.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	// Large enough for a browser driven download to stream back.
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.concurrency", 4)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.hydration_wait", "5s")

	// -- Download --
	v.SetDefault("download.dir", defaultDownloadDir())
	v.SetDefault("download.poll_interval", "2s")
	v.SetDefault("download.poll_timeout", "300s")
	v.SetDefault("download.min_size", 10*1024)

	// -- Extract --
	v.SetDefault("extract.carousel_max_slides", 20)
	v.SetDefault("extract.carousel_click_retry", 3)
	v.SetDefault("extract.carousel_retry_wait", "500ms")
	v.SetDefault("extract.carousel_settle_wait", "2s")
	v.SetDefault("extract.carousel_selectors", DefaultCarouselSelectors())
	v.SetDefault("extract.youtube_scan_window", "60s")

	// -- Fetch --
	v.SetDefault("fetch.connect_timeout", "60s")
	v.SetDefault("fetch.read_timeout", "120s")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// HEADLESS stays bound by name, without the env prefix, so the same
	// variable the browser layer honors also steers the default mode.
	v.BindEnv("browser.headless", "HEADLESS")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is a required configuration field")
	}
	if c.Browser.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.Download.PollInterval <= 0 || c.Download.PollTimeout <= 0 {
		return fmt.Errorf("download poll settings must be positive durations")
	}
	if c.Download.PollInterval >= c.Download.PollTimeout {
		return fmt.Errorf("download.poll_interval must be shorter than download.poll_timeout")
	}
	if c.Extract.CarouselMaxSlides <= 0 {
		return fmt.Errorf("extract.carousel_max_slides must be a positive integer")
	}
	return nil
}

// defaultDownloadDir resolves ~/Downloads, falling back to the working
// directory when the home directory cannot be determined.
func defaultDownloadDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(home, "Downloads")
}
