// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat relay service.
package server

import (
	"fmt"
	"sync"
	"time"

	env "github.com/Netflix/go-env"
)

// Fixed behavior, deliberately not user-exposed tuning.
const (
	// historyDepth is how many records are replayed to a joining session.
	historyDepth = 50
	// defaultLogDir is where per-room history logs are written.
	defaultLogDir = "logs"
	// sendQueueSize bounds each connection's outbound envelope queue; a
	// session that falls this far behind is disconnected.
	sendQueueSize = 256
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           int
	AllowedOrigins []string
	MaxMessageSize int64
	LogDir         string
	RateLimit      RateLimitConfig
}

// envConfig is the environment surface, loaded with go-env. The port is the
// one documented knob; the remaining variables are connection hardening.
type envConfig struct {
	Port           int      `env:"CHAT_PORT,default=2024"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`
	MaxMessageSize int64    `env:"MAX_MESSAGE_SIZE,default=4096"`
	RateBurst      int      `env:"RATE_LIMIT_BURST,default=10"`
	RateRefill     string   `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: 2024,
		AllowedOrigins: []string{
			"http://localhost:2024",
		},
		MaxMessageSize: 4096,
		LogDir:         defaultLogDir,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = 2024
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.LogDir == "" {
		cfg.LogDir = defaultLogDir
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:           cfg.Port,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize: cfg.MaxMessageSize,
		LogDir:         cfg.LogDir,
		RateLimit: RateLimitConfig{
			Burst:          cfg.RateLimit.Burst,
			RefillInterval: cfg.RateLimit.RefillInterval,
		},
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables,
// falling back to defaults for anything unset or unparsable.
func NewConfigFromEnv() (*Config, error) {
	var ec envConfig
	if _, err := env.UnmarshalFromEnviron(&ec); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := defaultConfig()
	cfg.Port = ec.Port
	if len(ec.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = ec.AllowedOrigins
	}
	cfg.MaxMessageSize = ec.MaxMessageSize
	cfg.RateLimit.Burst = ec.RateBurst
	if refill, err := time.ParseDuration(ec.RateRefill); err == nil && refill > 0 {
		cfg.RateLimit.RefillInterval = refill
	}
	return &cfg, nil
}

// Addr returns the listen address for the configured port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
