package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.GetAddress() != "127.0.0.1:8090" {
		t.Errorf("Expected address 127.0.0.1:8090, got %s", cfg.GetAddress())
	}
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("Expected default config file to be created: %v", err)
	}
	if cfg.Playback.Backend != "ffmpeg" {
		t.Errorf("Expected default backend ffmpeg, got %s", cfg.Playback.Backend)
	}

	// The written file must round-trip through the loader
	again, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to reload written config: %v", err)
	}
	if again.Server.Port != cfg.Server.Port {
		t.Errorf("Expected port %s after reload, got %s", cfg.Server.Port, again.Server.Port)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[server]
port = "9000"
host = "0.0.0.0"

[playback]
backend = "speaker"
reconnect_on_resume = true

[logging]
level = "debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Server.Port)
	}
	if cfg.Playback.Backend != "speaker" {
		t.Errorf("Expected backend speaker, got %s", cfg.Playback.Backend)
	}
	if !cfg.Playback.ReconnectOnResume {
		t.Error("Expected reconnect_on_resume to be true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unset values keep their defaults
	if cfg.Database.Path != "./radyo.db" {
		t.Errorf("Expected default database path, got %s", cfg.Database.Path)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[server\nport = "), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected parse error for malformed TOML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := DefaultConfig().SaveToFile(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	t.Setenv("RADYO_PORT", "7777")
	t.Setenv("RADYO_BACKEND", "speaker")
	t.Setenv("RADYO_CONSOLE", "true")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != "7777" {
		t.Errorf("Expected port 7777 from env, got %s", cfg.Server.Port)
	}
	if cfg.Playback.Backend != "speaker" {
		t.Errorf("Expected backend speaker from env, got %s", cfg.Playback.Backend)
	}
	if !cfg.Console.Enabled {
		t.Error("Expected console enabled from env")
	}
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := DefaultConfig().SaveToFile(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	// t.Setenv registers cleanup so the value loaded from .env is restored
	t.Setenv("RADYO_LOG_LEVEL", "")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RADYO_LOG_LEVEL=warn\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	os.Unsetenv("RADYO_LOG_LEVEL")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected log level warn from .env, got %s", cfg.Logging.Level)
	}
}

func TestInvalidBoolOverride(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("RADYO_NGROK", "maybe")

	err := cfg.ApplyEnv()
	if err == nil || !strings.Contains(err.Error(), "RADYO_NGROK") {
		t.Errorf("Expected error naming RADYO_NGROK, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Server.Port = "" }, true},
		{"empty host", func(c *Config) { c.Server.Host = "" }, true},
		{"zero surface ttl", func(c *Config) { c.Server.SurfaceTTL = 0 }, true},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"no connections", func(c *Config) { c.Database.MaxConnections = 0 }, true},
		{"empty catalog path", func(c *Config) { c.Catalog.Path = "" }, true},
		{"unknown backend", func(c *Config) { c.Playback.Backend = "vlc" }, true},
		{"ffmpeg without binary", func(c *Config) { c.Playback.FFmpegPath = "" }, true},
		{"ffmpeg without output format", func(c *Config) { c.Playback.OutputFormat = "" }, true},
		{"speaker without sample rate", func(c *Config) {
			c.Playback.Backend = "speaker"
			c.Playback.SampleRate = 0
		}, true},
		{"speaker ignores ffmpeg path", func(c *Config) {
			c.Playback.Backend = "speaker"
			c.Playback.FFmpegPath = ""
		}, false},
		{"zero ready timeout", func(c *Config) { c.Playback.ReadyTimeout = 0 }, true},
		{"probing without byte limit", func(c *Config) { c.Playback.ProbeBytes = 0 }, true},
		{"no probing without byte limit", func(c *Config) {
			c.Playback.ProbeStreams = false
			c.Playback.ProbeBytes = 0
		}, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
