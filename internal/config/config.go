// Package config loads the process configuration from an optional YAML
// file overlaid with CRUX_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Storage   StorageConfig   `koanf:"storage"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend      string        `koanf:"backend"`
	DefaultTTL   time.Duration `koanf:"default_ttl"`
	ResponseTTL  time.Duration `koanf:"response_ttl"`
	Redis        RedisConfig   `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type RateLimitConfig struct {
	// Strategy is "fixed_window" (default) or "token_bucket".
	Strategy    string            `koanf:"strategy"`
	MaxRequests int               `koanf:"max_requests"`
	WindowMS    int               `koanf:"window_ms"`
	Routes      []RouteRateLimit  `koanf:"routes"`
}

type RouteRateLimit struct {
	Route       string `koanf:"route"`
	MaxRequests int    `koanf:"max_requests"`
	WindowMS    int    `koanf:"window_ms"`
	Message     string `koanf:"message"`
}

// Window converts the millisecond setting to a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

type PipelineConfig struct {
	BodySizeLimit int        `koanf:"body_size_limit"`
	CSRF          CSRFConfig `koanf:"csrf"`
}

type CSRFConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Header     string `koanf:"header"`
	CookieName string `koanf:"cookie_name"`
}

type StorageConfig struct {
	// Type is "sqlite", "memory", or "none".
	Type   string       `koanf:"type"`
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// Load reads configPath (skipped when empty) and then the environment.
// Environment variables use a double underscore as the nesting delimiter:
// CRUX_SERVER__PORT=9090 maps to server.port,
// CRUX_RATE_LIMIT__MAX_REQUESTS to rate_limit.max_requests.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("CRUX_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CRUX_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":              8080,
		"cache.backend":            "memory",
		"cache.default_ttl":        "60s",
		"rate_limit.strategy":      "fixed_window",
		"rate_limit.max_requests":  100,
		"rate_limit.window_ms":     60000,
		"pipeline.body_size_limit": 1 << 20,
		"storage.type":             "none",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}
