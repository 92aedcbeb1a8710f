package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all gateway configuration.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Session   SessionConfig
	FollowUp  FollowUpConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Port   string `envconfig:"PORT" default:"3001"`
	Host   string `envconfig:"HOST" default:"0.0.0.0"`
	WSPath string `envconfig:"WS_PATH" default:"/ws"`
}

// AuthConfig holds REST provisioning credentials.
// Empty values disable the auth middleware (development mode).
type AuthConfig struct {
	APIKey    string `envconfig:"API_KEY" default:""`
	APISecret string `envconfig:"API_SECRET" default:""`
}

// LLMConfig holds the text-generation provider configuration.
type LLMConfig struct {
	APIKey      string  `envconfig:"GOOGLE_API_KEY" default:""`
	Model       string  `envconfig:"DEFAULT_MODEL" default:"gemini-2.5-pro"`
	BaseURL     string  `envconfig:"LLM_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	MaxTokens   int     `envconfig:"MAX_TOKENS" default:"4096"`
	Temperature float64 `envconfig:"TEMPERATURE" default:"0.7"`
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	Timeout       time.Duration `envconfig:"SESSION_TIMEOUT" default:"1h"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
	Heartbeat     time.Duration `envconfig:"WS_HEARTBEAT_INTERVAL" default:"30s"`
}

// FollowUpConfig holds follow-up question generation defaults.
// Sessions can override both via client metadata.
type FollowUpConfig struct {
	Enabled bool `envconfig:"FOLLOWUP_ENABLED" default:"true"`
	Count   int  `envconfig:"FOLLOWUP_COUNT" default:"3"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-IP rate limiting configuration.
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
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:   "3001",
			Host:   "0.0.0.0",
			WSPath: "/ws",
		},
		LLM: LLMConfig{
			Model:       "gemini-2.5-pro",
			BaseURL:     "https://generativelanguage.googleapis.com",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Session: SessionConfig{
			Timeout:       time.Hour,
			SweepInterval: time.Minute,
			Heartbeat:     30 * time.Second,
		},
		FollowUp: FollowUpConfig{
			Enabled: true,
			Count:   3,
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
