package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel())
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "autopilot.yaml", `
android:
  adb_path: /opt/platform-tools/adb
  serial_patterns: ["emulator-*"]
  command_timeout: 45s
browser:
  driver: chromedp
  headless: false
  viewport:
    width: 1920
    height: 1080
logging:
  verbosity: debug
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "/opt/platform-tools/adb", cfg.Android.ADBPath)
	assert.Equal(t, []string{"emulator-*"}, cfg.Android.SerialPatterns)
	assert.Equal(t, 45*time.Second, cfg.Android.CommandTimeout)
	assert.Equal(t, "/sdcard", cfg.Android.RemoteTempDir, "unset keys keep defaults")
	assert.Equal(t, "chromedp", cfg.Browser.Driver)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, ViewportConfig{Width: 1920, Height: 1080}, cfg.Browser.Viewport)
	assert.Equal(t, "debug", cfg.LogLevel())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "bad.yaml", "android:\n  adb: /usr/bin/adb\n")
	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestDotEnvAndEnvOverrides(t *testing.T) {
	// t.Setenv restores the originals; the unset leaves room for .env
	t.Setenv(EnvPort, "")
	t.Setenv(EnvADBPath, "")
	require.NoError(t, os.Unsetenv(EnvPort))
	require.NoError(t, os.Unsetenv(EnvADBPath))
	t.Setenv(EnvBrowserDriver, "chromedp")

	// godotenv does not override variables that are already set
	envPath := writeFile(t, ".env", "AUTOPILOT_ADB_PATH=/from/dotenv/adb\nAUTOPILOT_BROWSER_DRIVER=playwright\n")

	cfg, err := Load("", envPath)
	require.NoError(t, err)

	assert.Equal(t, "/from/dotenv/adb", cfg.Android.ADBPath)
	assert.Equal(t, "chromedp", cfg.Browser.Driver)
	assert.Equal(t, ":3000", cfg.Server.Addr)
}

func TestLoadDotEnvMissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
	assert.NoError(t, LoadDotEnv(""))
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{EnvPort: "8080", EnvADBPath: "/x/adb"}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/x/adb", cfg.Android.ADBPath)
	assert.Equal(t, "playwright", cfg.Browser.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "empty adb path", mutate: func(c *Config) { c.Android.ADBPath = "" }, wantErr: "adb_path"},
		{name: "zero timeout", mutate: func(c *Config) { c.Android.CommandTimeout = 0 }, wantErr: "command_timeout"},
		{name: "bad pattern", mutate: func(c *Config) { c.Android.SerialPatterns = []string{"emu-["} }, wantErr: "serial_patterns"},
		{name: "unknown driver", mutate: func(c *Config) { c.Browser.Driver = "selenium" }, wantErr: "browser.driver"},
		{name: "bad viewport", mutate: func(c *Config) { c.Browser.Viewport.Width = 0 }, wantErr: "viewport"},
		{name: "bad verbosity", mutate: func(c *Config) { c.Logging.Verbosity = "loud" }, wantErr: "verbosity"},
		{name: "empty verbosity defaults", mutate: func(c *Config) { c.Logging.Verbosity = "" }},
		{name: "empty addr", mutate: func(c *Config) { c.Server.Addr = "" }, wantErr: "server.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
