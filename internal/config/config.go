package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session store kinds.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	APIBaseURL       string        `mapstructure:"API_BASE_URL"`
	PredictURL       string        `mapstructure:"PREDICT_URL"`
	HTTPTimeout      time.Duration `mapstructure:"HTTP_TIMEOUT"`
	SessionStore     string        `mapstructure:"SESSION_STORE"`
	SessionFile      string        `mapstructure:"SESSION_FILE"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	SessionKeyPrefix string        `mapstructure:"SESSION_KEY_PREFIX"`
	DevPort          string        `mapstructure:"DEV_PORT"`
	DevSigningKey    string        `mapstructure:"DEV_SIGNING_KEY"`
	DevTokenTTL      time.Duration `mapstructure:"DEV_TOKEN_TTL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_BASE_URL", "http://localhost:8000")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("SESSION_STORE", StoreFile)
	v.SetDefault("SESSION_FILE", defaultSessionFile())
	v.SetDefault("SESSION_KEY_PREFIX", "octscan:")
	v.SetDefault("DEV_PORT", "8000")
	v.SetDefault("DEV_TOKEN_TTL", "30m")
	v.SetDefault("CORS_ORIGINS", "*")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"ENV", "LOG_LEVEL", "API_BASE_URL", "PREDICT_URL", "HTTP_TIMEOUT",
		"SESSION_STORE", "SESSION_FILE", "REDIS_URL", "SESSION_KEY_PREFIX",
		"DEV_PORT", "DEV_SIGNING_KEY", "DEV_TOKEN_TTL", "CORS_ORIGINS",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.PredictURL == "" {
		cfg.PredictURL = cfg.APIBaseURL
	}

	return cfg, nil
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".octscan-session.json"
	}
	return filepath.Join(home, ".octscan", "session.json")
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the settings the client needs before it talks to anything.
func (c *Config) Validate() error {
	if err := checkURL("API_BASE_URL", c.APIBaseURL); err != nil {
		return err
	}
	if err := checkURL("PREDICT_URL", c.PredictURL); err != nil {
		return err
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}

	switch c.SessionStore {
	case StoreFile:
		if c.SessionFile == "" {
			return fmt.Errorf("SESSION_FILE is required when SESSION_STORE is %q", StoreFile)
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE is %q", StoreRedis)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q, %q, or %q, got %q", StoreFile, StoreRedis, StoreMemory, c.SessionStore)
	}

	if c.DevTokenTTL <= 0 {
		return fmt.Errorf("DEV_TOKEN_TTL must be positive, got %s", c.DevTokenTTL)
	}
	return nil
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}
