package config

import (
	"fmt"
	"strings"
	"time"
)

// Application environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Session resolution modes.
const (
	AuthModeJWT    = "jwt"
	AuthModeRemote = "remote"
	AuthModeBoth   = "both"
)

const devSecret = "teamchat-dev-secret-change-me"

// Config holds server configuration values.
type Config struct {
	AppEnv            string        `mapstructure:"app_env" yaml:"app_env"`
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	// WebBaseURL is the browser origin of the web client. Empty allows any origin.
	WebBaseURL string `mapstructure:"web_base_url" yaml:"web_base_url"`

	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Realtime  RealtimeConfig  `mapstructure:"realtime" yaml:"realtime"`
}

// DatabaseConfig selects and configures the message store.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	Path       string `mapstructure:"path" yaml:"path"`
	URL        string `mapstructure:"url" yaml:"url"`
	MaxConns   int32  `mapstructure:"max_conns" yaml:"max_conns"`
	AutoSchema bool   `mapstructure:"auto_schema" yaml:"auto_schema"`
}

// AuthConfig configures session resolution.
type AuthConfig struct {
	Mode            string        `mapstructure:"mode" yaml:"mode"`
	Secret          string        `mapstructure:"secret" yaml:"secret"`
	CookieName      string        `mapstructure:"cookie_name" yaml:"cookie_name"`
	SessionEndpoint string        `mapstructure:"session_endpoint" yaml:"session_endpoint"`
	ResolveTimeout  time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout"`
	TokenTTL        time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// RedisConfig points at the Redis used for shared rate limits. Empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// RateLimitConfig holds per-user limits. Zero disables a limit.
type RateLimitConfig struct {
	MessagesPerMinute int `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
	WSFramesPerMinute int `mapstructure:"ws_frames_per_minute" yaml:"ws_frames_per_minute"`
}

// RealtimeConfig tunes the websocket gateway.
type RealtimeConfig struct {
	SendBuffer int `mapstructure:"send_buffer" yaml:"send_buffer"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		AppEnv:            EnvDevelopment,
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		Database: DatabaseConfig{
			Driver:     DriverSQLite,
			Path:       "teamchat.db",
			MaxConns:   10,
			AutoSchema: true,
		},
		Auth: AuthConfig{
			Mode:           AuthModeJWT,
			CookieName:     "teamchat_session",
			ResolveTimeout: 5 * time.Second,
			TokenTTL:       24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			MessagesPerMinute: 60,
			WSFramesPerMinute: 120,
		},
		Realtime: RealtimeConfig{
			SendBuffer: 32,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// Validate normalizes values and rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch env := strings.ToLower(strings.TrimSpace(c.AppEnv)); env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		c.AppEnv = env
	default:
		c.AppEnv = EnvDevelopment
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "json" {
		c.LogFormat = "console"
	}

	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	c.Auth.Mode = strings.ToLower(c.Auth.Mode)
	switch c.Auth.Mode {
	case AuthModeJWT, AuthModeRemote, AuthModeBoth:
	case "":
		c.Auth.Mode = AuthModeJWT
	default:
		return fmt.Errorf("unsupported auth.mode %q", c.Auth.Mode)
	}
	if c.Auth.Secret == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("auth.secret is required in %s", c.AppEnv)
		}
		c.Auth.Secret = devSecret
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}

	if c.RateLimit.MessagesPerMinute < 0 || c.RateLimit.WSFramesPerMinute < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	return nil
}
