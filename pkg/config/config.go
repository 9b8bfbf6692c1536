// Package config loads autopilot configuration from a YAML file, a .env file
// and the process environment, in that order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gobwas/glob"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvADBPath       = "AUTOPILOT_ADB_PATH"
	EnvBrowserDriver = "AUTOPILOT_BROWSER_DRIVER"
	EnvPort          = "PORT"
)

// Config is the complete autopilot configuration
type Config struct {
	// Android device bridge settings
	Android AndroidConfig `yaml:"android" json:"android"`

	// Browser driver settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Demo server configuration
	Server ServerConfig `yaml:"server" json:"server"`
}

// AndroidConfig configures the adb backend
type AndroidConfig struct {
	ADBPath        string        `yaml:"adb_path" json:"adb_path"`
	SerialPatterns []string      `yaml:"serial_patterns" json:"serial_patterns"` // glob patterns, empty keeps every device
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`
	RemoteTempDir  string        `yaml:"remote_temp_dir" json:"remote_temp_dir"`
}

// BrowserConfig configures the browser backend
type BrowserConfig struct {
	// Driver is "playwright" or "chromedp"
	Driver   string         `yaml:"driver" json:"driver"`
	Headless bool           `yaml:"headless" json:"headless"`
	Timeout  time.Duration  `yaml:"timeout" json:"timeout"`
	Viewport ViewportConfig `yaml:"viewport" json:"viewport"`

	// Install downloads the Playwright driver and browsers on first use
	Install bool `yaml:"install" json:"install"`
}

// ViewportConfig is the browser viewport size
type ViewportConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// ServerConfig configures the demo HTTP server
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Android: AndroidConfig{
			ADBPath:        "adb",
			CommandTimeout: 30 * time.Second,
			RemoteTempDir:  "/sdcard",
		},
		Browser: BrowserConfig{
			Driver:   "playwright",
			Headless: true,
			Timeout:  30 * time.Second,
			Viewport: ViewportConfig{Width: 1280, Height: 720},
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
		Server: ServerConfig{
			Addr: ":3000",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Android.ADBPath == "" {
		return fmt.Errorf("android.adb_path is required")
	}
	if c.Android.CommandTimeout <= 0 {
		return fmt.Errorf("android.command_timeout must be positive")
	}
	for _, p := range c.Android.SerialPatterns {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("invalid android.serial_patterns entry %q: %w", p, err)
		}
	}

	if c.Browser.Driver != "playwright" && c.Browser.Driver != "chromedp" {
		return fmt.Errorf("invalid browser.driver: %s (must be 'playwright' or 'chromedp')", c.Browser.Driver)
	}
	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be positive")
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport must have positive width and height")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// LogLevel maps the verbosity onto a logging level name.
func (c *Config) LogLevel() string {
	switch c.Logging.Verbosity {
	case "quiet":
		return "error"
	case "verbose", "debug":
		return "debug"
	default:
		return "info"
	}
}

// Load reads the YAML file at path (optional), the .env file at envPath
// (optional, missing file ignored), applies environment overrides and
// validates the result.
func Load(path, envPath string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(envPath); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto c, rejecting unknown keys.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadDotEnv loads environment variables from path. Missing files are
// ignored and variables already set in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies environment overrides using getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvADBPath); v != "" {
		c.Android.ADBPath = v
	}
	if v := getenv(EnvBrowserDriver); v != "" {
		c.Browser.Driver = v
	}
	if v := getenv(EnvPort); v != "" {
		c.Server.Addr = ":" + v
	}
}
