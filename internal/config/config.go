// Package config centralizes environment-derived settings for the session
// core. It is loaded once at startup and passed explicitly to every
// constructor — never read from a package-global inside business logic.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// Config holds every environment-tunable setting for the service.
type Config struct {
	Port string `env:"PORT,default=8080"`

	SupabaseURL      string `env:"SUPABASE_URL,required=true"`
	SupabaseAnonKey  string `env:"SUPABASE_ANON_KEY"`
	AuthJWKSURL      string `env:"AUTH_JWKS_URL"`
	AuthAudience     string `env:"AUTH_AUDIENCE,default=authenticated"`

	DatabaseURL string `env:"DATABASE_URL,required=true"`

	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisDB   int    `env:"REDIS_DB,default=0"`

	CORSOrigins string `env:"CORS_ORIGINS"`
	Debug       bool   `env:"DEBUG,default=false"`

	WSHeartbeatInterval time.Duration `env:"WS_HEARTBEAT_INTERVAL,default=30s"`
	WSConnectionTimeout time.Duration `env:"WS_CONNECTION_TIMEOUT,default=60s"`
	AuthTimeout         time.Duration `env:"AUTH_TIMEOUT,default=30s"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT"`
	LogPath   string `env:"LOG_PATH"`
}

// Load reads the process environment into a Config, applying defaults and
// deriving values the spec leaves optional.
func Load() (*Config, error) {
	var c Config
	if _, err := env.UnmarshalFromEnviron(&c); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	if c.AuthJWKSURL == "" {
		c.AuthJWKSURL = strings.TrimRight(c.SupabaseURL, "/") + "/auth/v1/.well-known/jwks.json"
	}
	if c.LogFormat == "" {
		if c.Debug {
			c.LogFormat = "text"
		} else {
			c.LogFormat = "json"
		}
	}

	return &c, nil
}

// AllowedOrigins splits the comma-separated CORSOrigins setting.
func (c *Config) AllowedOrigins() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
