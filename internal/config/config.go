// Package config loads huddle settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers accepted by HUDDLE_STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Version string `env:"HUDDLE_VERSION" envDefault:"dev"`

	Log      LogConfig      `envPrefix:"HUDDLE_LOG_"`
	HTTP     HTTPConfig     `envPrefix:"HUDDLE_HTTP_"`
	LLM      LLMConfig      `envPrefix:"HUDDLE_LLM_"`
	Sleeper  SleeperConfig  `envPrefix:"HUDDLE_SLEEPER_"`
	Players  PlayersConfig  `envPrefix:"HUDDLE_PLAYERS_"`
	Store    StoreConfig    `envPrefix:"HUDDLE_STORE_"`
	Session  SessionConfig  `envPrefix:"HUDDLE_SESSION_"`
	Purchase PurchaseConfig `envPrefix:"HUDDLE_PURCHASE_"`
	A2A      A2AConfig      `envPrefix:"HUDDLE_A2A_"`
	Telegram TelegramConfig `envPrefix:"HUDDLE_TELEGRAM_"`

	// PromptFile replaces the built-in system prompt when set.
	PromptFile string `env:"HUDDLE_PROMPT_FILE"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

type HTTPConfig struct {
	Addr         string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	MCPEnabled   bool          `env:"MCP_ENABLED" envDefault:"true"`
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint.
// Fallback* fields chain a second provider tried after any primary error.
type LLMConfig struct {
	URL            string        `env:"URL" envDefault:"https://api.openai.com/v1"`
	Model          string        `env:"MODEL" envDefault:"gpt-4o-mini"`
	APIKey         string        `env:"API_KEY"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"60s"`
	FallbackURL    string        `env:"FALLBACK_URL"`
	FallbackModel  string        `env:"FALLBACK_MODEL"`
	FallbackAPIKey string        `env:"FALLBACK_API_KEY"`
}

// HasFallback reports whether a fallback provider is configured.
func (c LLMConfig) HasFallback() bool {
	return c.FallbackURL != "" || c.FallbackAPIKey != ""
}

type SleeperConfig struct {
	BaseURL          string        `env:"BASE_URL" envDefault:"https://api.sleeper.app/v1"`
	AvatarURL        string        `env:"AVATAR_URL" envDefault:"https://sleepercdn.com/avatars"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"10s"`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"2"`
	RetryDelay       time.Duration `env:"RETRY_DELAY" envDefault:"200ms"`
	RetryMaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"2s"`
	RatePerMinute    int           `env:"RATE_PER_MINUTE" envDefault:"900"`
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerReset     time.Duration `env:"BREAKER_RESET" envDefault:"30s"`
	DefaultSport     string        `env:"DEFAULT_SPORT" envDefault:"nfl"`
	DefaultSeason    string        `env:"DEFAULT_SEASON" envDefault:"2023"`
}

// PlayersConfig locates the player table. With Sync on, a missing or stale
// File is downloaded from Sleeper at startup; an empty File caches under the
// user cache directory.
type PlayersConfig struct {
	File   string        `env:"FILE"`
	Sync   bool          `env:"SYNC" envDefault:"true"`
	MaxAge time.Duration `env:"MAX_AGE" envDefault:"24h"`
}

type StoreConfig struct {
	Driver string `env:"DRIVER" envDefault:"memory"`
	DSN    string `env:"DSN"`
	// TTL expires idle chats in the redis driver. Zero keeps them forever.
	TTL time.Duration `env:"TTL"`
}

type SessionConfig struct {
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
}

type PurchaseConfig struct {
	StepDelay time.Duration `env:"STEP_DELAY" envDefault:"1s"`
}

type A2AConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	Secret  string `env:"SECRET"`
}

type TelegramConfig struct {
	Token      string  `env:"TOKEN"`
	Allowed    []int64 `env:"ALLOWED" envSeparator:","`
	MaxRetries int     `env:"MAX_RETRIES" envDefault:"2"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Sleeper.DefaultSport = strings.ToLower(strings.TrimSpace(cfg.Sleeper.DefaultSport))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverRedis, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("HUDDLE_STORE_DSN is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Sleeper.RatePerMinute <= 0 {
		return fmt.Errorf("HUDDLE_SLEEPER_RATE_PER_MINUTE must be positive")
	}
	if c.Sleeper.MaxRetries < 0 {
		return fmt.Errorf("HUDDLE_SLEEPER_MAX_RETRIES must not be negative")
	}
	return nil
}
