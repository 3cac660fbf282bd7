// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Library  LibraryConfig  `yaml:"library"`
	Playback PlaybackConfig `yaml:"playback"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Engine   EngineConfig   `yaml:"engine"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents the signal gateway endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8680"`
}

// LibraryConfig locates the media library. Empty paths defer the library to
// the client handshake.
type LibraryConfig struct {
	DatabasePath string `yaml:"database_path"`
	MusicRoot    string `yaml:"music_root"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	ProgressIntervalMs int `yaml:"progress_interval_ms" default:"200" validate:"gte=50,lte=5000"`
}

// AnalyzerConfig represents the spectrum analyzer configuration.
type AnalyzerConfig struct {
	Enabled    bool `yaml:"enabled" default:"true"`
	WindowSize int  `yaml:"window_size" default:"1024" validate:"gte=64,lte=16384"`
	Bins       int  `yaml:"bins" default:"32" validate:"gte=4,lte=512"`
	IntervalMs int  `yaml:"interval_ms" default:"50" validate:"gte=16,lte=1000"`
}

// EngineConfig selects and configures the audio engine.
type EngineConfig struct {
	Type     string         `yaml:"type" default:"speaker" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// LogConfig represents logging output configuration.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"20" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	var cfg Config
	cfg.overrideFromEnv()
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("HUB_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HUB_LIBRARY_DB"); v != "" {
		c.Library.DatabasePath = v
	}
	if v := os.Getenv("HUB_MUSIC_ROOT"); v != "" {
		c.Library.MusicRoot = v
	}
	if v := os.Getenv("HUB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Library.DatabasePath != "" && c.Library.MusicRoot == "" {
		return errors.New("library.music_root is required when library.database_path is set")
	}
	if c.Analyzer.Enabled && !isPowerOfTwo(c.Analyzer.WindowSize) {
		return errors.Newf("analyzer.window_size (%d) must be a power of two", c.Analyzer.WindowSize)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
