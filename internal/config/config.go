package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Playback PlaybackConfig `toml:"playback"`
	Logging  LoggingConfig  `toml:"logging"`
	Console  ConsoleConfig  `toml:"console"`
	Ngrok    NgrokConfig    `toml:"ngrok"`
}

// ServerConfig contains control API configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
	APIToken    string `toml:"api_token"` // plaintext or bcrypt hash; empty disables auth
	SurfaceTTL  int    `toml:"surface_ttl_seconds"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// CatalogConfig contains station catalog configuration
type CatalogConfig struct {
	Path            string `toml:"path"`
	WatchForChanges bool   `toml:"watch_for_changes"`
}

// PlaybackConfig selects and tunes the platform media backend
type PlaybackConfig struct {
	Backend           string `toml:"backend"` // "ffmpeg" or "speaker"
	FFmpegPath        string `toml:"ffmpeg_path"`
	OutputFormat      string `toml:"output_format"` // ffmpeg -f muxer, e.g. pulse, alsa
	OutputDevice      string `toml:"output_device"`
	ReadyTimeout      int    `toml:"ready_timeout_seconds"`
	SampleRate        int    `toml:"sample_rate"`
	ReconnectOnResume bool   `toml:"reconnect_on_resume"` // speaker backend only
	ProbeStreams      bool   `toml:"probe_streams"`
	ProbeTimeout      int    `toml:"probe_timeout_seconds"`
	ProbeBytes        int    `toml:"probe_bytes"`
	ProbeCacheMinutes int    `toml:"probe_cache_minutes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	RequestLogging bool   `toml:"request_logging"`
}

// ConsoleConfig contains interactive console configuration
type ConsoleConfig struct {
	Enabled     bool   `toml:"enabled"`
	Prompt      string `toml:"prompt"`
	HistoryFile string `toml:"history_file"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled      bool   `toml:"enabled"`
	AuthToken    string `toml:"auth_token"`
	Domain       string `toml:"domain"`
	EnableAuth   bool   `toml:"enable_auth"`
	AuthProvider string `toml:"auth_provider"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8090",
			Host:        "127.0.0.1",
			EnableCORS:  true,
			ReadTimeout: 30,
			APIToken:    "",
			SurfaceTTL:  30,
		},
		Database: DatabaseConfig{
			Path:           "./radyo.db",
			MaxConnections: 5,
		},
		Catalog: CatalogConfig{
			Path:            "./stations.toml",
			WatchForChanges: true,
		},
		Playback: PlaybackConfig{
			Backend:           "ffmpeg",
			FFmpegPath:        "ffmpeg",
			OutputFormat:      "pulse",
			OutputDevice:      "radyo",
			ReadyTimeout:      15,
			SampleRate:        44100,
			ReconnectOnResume: false,
			ProbeStreams:      true,
			ProbeTimeout:      8,
			ProbeBytes:        16 * 1024,
			ProbeCacheMinutes: 30,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			File:           "",
			RequestLogging: true,
		},
		Console: ConsoleConfig{
			Enabled:     false,
			Prompt:      "radyo> ",
			HistoryFile: "",
		},
		Ngrok: NgrokConfig{
			Enabled:      false,
			AuthToken:    "",
			Domain:       "",
			EnableAuth:   false,
			AuthProvider: "google",
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies
// overrides from .env and the RADYO_* environment
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Load .env file if it exists next to the config
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides selected settings from RADYO_* environment variables
func (c *Config) ApplyEnv() error {
	strings := map[string]*string{
		"RADYO_HOST":          &c.Server.Host,
		"RADYO_PORT":          &c.Server.Port,
		"RADYO_API_TOKEN":     &c.Server.APIToken,
		"RADYO_DATABASE_PATH": &c.Database.Path,
		"RADYO_CATALOG_PATH":  &c.Catalog.Path,
		"RADYO_BACKEND":       &c.Playback.Backend,
		"RADYO_FFMPEG_PATH":   &c.Playback.FFmpegPath,
		"RADYO_LOG_LEVEL":     &c.Logging.Level,
		"RADYO_LOG_FORMAT":    &c.Logging.Format,
		"NGROK_AUTHTOKEN":     &c.Ngrok.AuthToken,
	}
	for key, target := range strings {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			*target = value
		}
	}

	bools := map[string]*bool{
		"RADYO_CONSOLE":       &c.Console.Enabled,
		"RADYO_PROBE_STREAMS": &c.Playback.ProbeStreams,
		"RADYO_NGROK":         &c.Ngrok.Enabled,
	}
	for key, target := range bools {
		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			continue
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*target = parsed
	}

	return nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Radyo Configuration
# Edit the values below to customize the radio daemon.
# playback.backend is "ffmpeg" (external process) or "speaker" (in-process decoder).

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.SurfaceTTL <= 0 {
		return fmt.Errorf("surface ttl must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog path cannot be empty")
	}

	switch c.Playback.Backend {
	case "ffmpeg":
		if c.Playback.FFmpegPath == "" {
			return fmt.Errorf("ffmpeg path cannot be empty")
		}
		if c.Playback.OutputFormat == "" {
			return fmt.Errorf("ffmpeg output format cannot be empty")
		}
	case "speaker":
		if c.Playback.SampleRate <= 0 {
			return fmt.Errorf("sample rate must be positive")
		}
	default:
		return fmt.Errorf("invalid playback backend: %s (must be ffmpeg or speaker)", c.Playback.Backend)
	}
	if c.Playback.ReadyTimeout <= 0 {
		return fmt.Errorf("ready timeout must be positive")
	}
	if c.Playback.ProbeStreams && (c.Playback.ProbeTimeout <= 0 || c.Playback.ProbeBytes <= 0) {
		return fmt.Errorf("probe timeout and probe bytes must be positive when probing is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}
