package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	Canvas    CanvasConfig
	Audio     AudioConfig
	Sources   SourcesConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// EngineConfig holds browser engine configuration.
type EngineConfig struct {
	QueueSize     int           `envconfig:"ENGINE_QUEUE_SIZE" default:"256"`
	ShutdownRetry time.Duration `envconfig:"ENGINE_SHUTDOWN_RETRY" default:"5ms"`
	FetchTimeout  time.Duration `envconfig:"ENGINE_FETCH_TIMEOUT" default:"15s"`
	FetchRetries  int           `envconfig:"ENGINE_FETCH_RETRIES" default:"2"`
	FetchRate     float64       `envconfig:"ENGINE_FETCH_RATE" default:"0"`
	UserAgent     string        `envconfig:"ENGINE_USER_AGENT" default:"browser-source/1.0"`
	ScriptTimeout time.Duration `envconfig:"ENGINE_SCRIPT_TIMEOUT" default:"5s"`
	Namespace     string        `envconfig:"ENGINE_NAMESPACE" default:"irltk"`
}

// CanvasConfig describes the output canvas sources are composited onto.
type CanvasConfig struct {
	Width  int `envconfig:"CANVAS_WIDTH" default:"1920"`
	Height int `envconfig:"CANVAS_HEIGHT" default:"1080"`
	FPS    int `envconfig:"CANVAS_FPS" default:"30"`
}

// AudioConfig describes the host audio mix.
type AudioConfig struct {
	Channels   int `envconfig:"AUDIO_CHANNELS" default:"2"`
	SampleRate int `envconfig:"AUDIO_SAMPLE_RATE" default:"48000"`
}

// SourcesConfig points at the source definitions loaded on startup. File
// may be a single path or a doublestar glob.
type SourcesConfig struct {
	File string `envconfig:"SOURCES_FILE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Canvas.Width <= 0 || c.Canvas.Height <= 0:
		return fmt.Errorf("invalid canvas size %dx%d", c.Canvas.Width, c.Canvas.Height)
	case c.Canvas.FPS <= 0:
		return fmt.Errorf("invalid canvas fps %d", c.Canvas.FPS)
	case c.Audio.Channels <= 0 || c.Audio.SampleRate <= 0:
		return fmt.Errorf("invalid audio format %d channels at %d Hz", c.Audio.Channels, c.Audio.SampleRate)
	case c.Engine.Namespace == "":
		return fmt.Errorf("engine namespace is required")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Engine: EngineConfig{
			QueueSize:     256,
			ShutdownRetry: 5 * time.Millisecond,
			FetchTimeout:  15 * time.Second,
			FetchRetries:  2,
			UserAgent:     "browser-source/1.0",
			ScriptTimeout: 5 * time.Second,
			Namespace:     "irltk",
		},
		Canvas: CanvasConfig{
			Width:  1920,
			Height: 1080,
			FPS:    30,
		},
		Audio: AudioConfig{
			Channels:   2,
			SampleRate: 48000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
