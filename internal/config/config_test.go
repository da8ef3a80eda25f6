package config

import (
	"strings"
	"testing"
	"time"
)

var configEnv = []string{
	"HTTP_ADDR",
	"DATABASE_URL",
	"LOG_LEVEL",
	"MAX_JSON_BODY_SIZE",
	"CACHE_RESYNC_INTERVAL",
	"OPENWEATHERMAP_API_KEY",
	"OPENWEATHERMAP_BASE_URL",
	"WEATHER_TIMEOUT",
	"REDIS_URL",
	"WEATHER_CACHE_TTL",
	"CHECK_RATE_LIMIT",
	"TRACE_SAMPLE_RATIO",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.MaxJSONBodySize != 1<<20 {
		t.Errorf("MaxJSONBodySize = %d, want %d", cfg.MaxJSONBodySize, 1<<20)
	}
	if cfg.CacheResyncInterval != time.Minute {
		t.Errorf("CacheResyncInterval = %v, want 1m", cfg.CacheResyncInterval)
	}
	if cfg.WeatherBaseURL != "https://api.openweathermap.org" {
		t.Errorf("WeatherBaseURL = %q, want OpenWeatherMap", cfg.WeatherBaseURL)
	}
	if cfg.WeatherTimeout != 5*time.Second {
		t.Errorf("WeatherTimeout = %v, want 5s", cfg.WeatherTimeout)
	}
	if cfg.WeatherCacheTTL != 10*time.Minute {
		t.Errorf("WeatherCacheTTL = %v, want 10m", cfg.WeatherCacheTTL)
	}
	if cfg.CheckRateLimit != 60 {
		t.Errorf("CheckRateLimit = %d, want 60", cfg.CheckRateLimit)
	}
	if cfg.TraceSampleRatio != 1 {
		t.Errorf("TraceSampleRatio = %v, want 1", cfg.TraceSampleRatio)
	}
	if cfg.WeatherEnabled() {
		t.Error("WeatherEnabled() = true without an API key")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("DATABASE_URL", " postgres://localhost/promoz ")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MAX_JSON_BODY_SIZE", "2048")
	t.Setenv("CACHE_RESYNC_INTERVAL", "30s")
	t.Setenv("OPENWEATHERMAP_API_KEY", "owm-key")
	t.Setenv("OPENWEATHERMAP_BASE_URL", "http://weather.internal:8080")
	t.Setenv("WEATHER_TIMEOUT", "2s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("WEATHER_CACHE_TTL", "1h")
	t.Setenv("CHECK_RATE_LIMIT", "600")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Config{
		HTTPAddr:            "127.0.0.1:9000",
		DatabaseURL:         "postgres://localhost/promoz",
		LogLevel:            "DEBUG",
		MaxJSONBodySize:     2048,
		CacheResyncInterval: 30 * time.Second,
		WeatherAPIKey:       "owm-key",
		WeatherBaseURL:      "http://weather.internal:8080",
		WeatherTimeout:      2 * time.Second,
		RedisURL:            "redis://localhost:6379/1",
		WeatherCacheTTL:     time.Hour,
		CheckRateLimit:      600,
		TraceSampleRatio:    0.25,
	}
	if cfg != want {
		t.Fatalf("Load() = %#v, want %#v", cfg, want)
	}
	if !cfg.WeatherEnabled() {
		t.Fatal("WeatherEnabled() = false with an API key")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"MAX_JSON_BODY_SIZE", "0", "MAX_JSON_BODY_SIZE"},
		{"MAX_JSON_BODY_SIZE", "big", "MAX_JSON_BODY_SIZE"},
		{"CACHE_RESYNC_INTERVAL", "not-a-duration", "CACHE_RESYNC_INTERVAL"},
		{"CACHE_RESYNC_INTERVAL", "0s", "CACHE_RESYNC_INTERVAL"},
		{"WEATHER_TIMEOUT", "-1s", "WEATHER_TIMEOUT"},
		{"WEATHER_CACHE_TTL", "forever", "WEATHER_CACHE_TTL"},
		{"OPENWEATHERMAP_BASE_URL", "weather.internal", "OPENWEATHERMAP_BASE_URL"},
		{"CHECK_RATE_LIMIT", "-5", "CHECK_RATE_LIMIT"},
		{"TRACE_SAMPLE_RATIO", "1.5", "TRACE_SAMPLE_RATIO"},
		{"TRACE_SAMPLE_RATIO", "half", "TRACE_SAMPLE_RATIO"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%q", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %q, want it to name %s", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOrDefault_EmptyReturnsDefault(t *testing.T) {
	t.Setenv("PROMOZ_TEST_KEY", "")
	if got := envOrDefault("PROMOZ_TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("envOrDefault() = %q, want fallback", got)
	}
}

func TestEnvOrDefault_WhitespaceReturnsDefault(t *testing.T) {
	t.Setenv("PROMOZ_TEST_KEY", "   ")
	if got := envOrDefault("PROMOZ_TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("envOrDefault() = %q, want fallback", got)
	}
}

func TestEnvOrDefault_ValueReturnsValue(t *testing.T) {
	t.Setenv("PROMOZ_TEST_KEY", " custom ")
	if got := envOrDefault("PROMOZ_TEST_KEY", "fallback"); got != "custom" {
		t.Errorf("envOrDefault() = %q, want custom", got)
	}
}
