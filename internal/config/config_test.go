package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"API_BASE_URL", "PREDICT_URL", "SESSION_STORE", "HTTP_TIMEOUT", "DEV_TOKEN_TTL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Errorf("expected default API base URL, got %s", cfg.APIBaseURL)
	}
	if cfg.PredictURL != cfg.APIBaseURL {
		t.Errorf("expected PREDICT_URL to default to API_BASE_URL, got %s", cfg.PredictURL)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", cfg.HTTPTimeout)
	}
	if cfg.SessionStore != StoreFile {
		t.Errorf("expected file session store, got %s", cfg.SessionStore)
	}
	if cfg.DevTokenTTL != 30*time.Minute {
		t.Errorf("expected default token TTL 30m, got %s", cfg.DevTokenTTL)
	}
	if cfg.SessionKeyPrefix != "octscan:" {
		t.Errorf("expected default key prefix, got %s", cfg.SessionKeyPrefix)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com/")
	t.Setenv("PREDICT_URL", "https://infer.example.com")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIBaseURL != "https://api.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.APIBaseURL)
	}
	if cfg.PredictURL != "https://infer.example.com" {
		t.Errorf("expected PREDICT_URL from env, got %s", cfg.PredictURL)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.HTTPTimeout)
	}
	if cfg.SessionStore != StoreRedis {
		t.Errorf("expected store kind normalised to redis, got %s", cfg.SessionStore)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func validConfig() Config {
	return Config{
		APIBaseURL:   "http://localhost:8000",
		PredictURL:   "http://localhost:8000",
		HTTPTimeout:  30 * time.Second,
		SessionStore: StoreFile,
		SessionFile:  "/tmp/session.json",
		DevTokenTTL:  30 * time.Minute,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"memory store", func(c *Config) { c.SessionStore = StoreMemory; c.SessionFile = "" }, ""},
		{"relative base url", func(c *Config) { c.APIBaseURL = "localhost:8000" }, "API_BASE_URL"},
		{"bad predict url", func(c *Config) { c.PredictURL = "ftp://x" }, "PREDICT_URL"},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, "HTTP_TIMEOUT"},
		{"unknown store", func(c *Config) { c.SessionStore = "sqlite" }, "SESSION_STORE"},
		{"file store without path", func(c *Config) { c.SessionFile = "" }, "SESSION_FILE"},
		{"redis without url", func(c *Config) { c.SessionStore = StoreRedis }, "REDIS_URL"},
		{"zero token ttl", func(c *Config) { c.DevTokenTTL = 0 }, "DEV_TOKEN_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}
