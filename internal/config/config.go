// Package config loads server configuration from environment variables.
//
// Every variable is optional:
//   - HTTP_ADDR: listen address for the HTTP server (default ":8080").
//   - DATABASE_URL: PostgreSQL connection string. When empty the server keeps
//     promo codes in memory for the lifetime of the process.
//   - LOG_LEVEL: one of debug, info, warn, error (default "info").
//   - MAX_JSON_BODY_SIZE: max HTTP JSON request body size in bytes
//     (default "1048576", must be > 0 if set).
//   - CACHE_RESYNC_INTERVAL: safety-net cache refresh interval
//     (default "1m", must be > 0 if set).
//   - OPENWEATHERMAP_API_KEY: enables weather lookups during checks.
//   - OPENWEATHERMAP_BASE_URL: weather API base URL
//     (default "https://api.openweathermap.org").
//   - WEATHER_TIMEOUT: per-lookup HTTP timeout (default "5s").
//   - REDIS_URL: enables the Redis weather cache, e.g. "redis://localhost:6379/0".
//   - WEATHER_CACHE_TTL: how long a town's weather stays cached (default "10m").
//   - CHECK_RATE_LIMIT: check requests allowed per minute per client IP
//     (default "60").
//   - TRACE_SAMPLE_RATIO: fraction of traces sampled when tracing is enabled
//     (default "1", between 0 and 1).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matt-riley/promoz/internal/logging"
)

const (
	defaultHTTPAddr                  = ":8080"
	defaultLogLevel                  = "info"
	defaultMaxJSONBodySize     int64 = 1 << 20 // 1MB
	defaultCacheResyncInterval       = time.Minute
	defaultWeatherBaseURL            = "https://api.openweathermap.org"
	defaultWeatherTimeout            = 5 * time.Second
	defaultWeatherCacheTTL           = 10 * time.Minute
	defaultCheckRateLimit            = 60
	defaultTraceSampleRatio          = 1.0
)

// Config holds the runtime configuration for the promoz server.
type Config struct {
	HTTPAddr            string
	DatabaseURL         string
	LogLevel            string
	MaxJSONBodySize     int64
	CacheResyncInterval time.Duration

	WeatherAPIKey   string
	WeatherBaseURL  string
	WeatherTimeout  time.Duration
	RedisURL        string
	WeatherCacheTTL time.Duration

	CheckRateLimit   int
	TraceSampleRatio float64
}

// WeatherEnabled reports whether checks should look up the requester's weather.
func (c Config) WeatherEnabled() bool {
	return c.WeatherAPIKey != ""
}

// Load reads configuration from environment variables, applying defaults where
// appropriate. It returns an error if any value fails validation.
func Load() (Config, error) {
	logLevel := envOrDefault("LOG_LEVEL", defaultLogLevel)
	if _, err := logging.ParseLevel(logLevel); err != nil {
		return Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	maxJSONBodySize := defaultMaxJSONBodySize
	if v := strings.TrimSpace(os.Getenv("MAX_JSON_BODY_SIZE")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return Config{}, errors.New("MAX_JSON_BODY_SIZE must be a positive integer (bytes)")
		}
		maxJSONBodySize = n
	}

	cacheResyncInterval, err := positiveDuration("CACHE_RESYNC_INTERVAL", defaultCacheResyncInterval)
	if err != nil {
		return Config{}, err
	}
	weatherTimeout, err := positiveDuration("WEATHER_TIMEOUT", defaultWeatherTimeout)
	if err != nil {
		return Config{}, err
	}
	weatherCacheTTL, err := positiveDuration("WEATHER_CACHE_TTL", defaultWeatherCacheTTL)
	if err != nil {
		return Config{}, err
	}

	weatherBaseURL := envOrDefault("OPENWEATHERMAP_BASE_URL", defaultWeatherBaseURL)
	if parsed, err := url.Parse(weatherBaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Config{}, errors.New("OPENWEATHERMAP_BASE_URL must be an absolute URL")
	}

	checkRateLimit := defaultCheckRateLimit
	if v := strings.TrimSpace(os.Getenv("CHECK_RATE_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, errors.New("CHECK_RATE_LIMIT must be a positive integer (requests per minute)")
		}
		checkRateLimit = n
	}

	traceSampleRatio := defaultTraceSampleRatio
	if v := strings.TrimSpace(os.Getenv("TRACE_SAMPLE_RATIO")); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			return Config{}, errors.New("TRACE_SAMPLE_RATIO must be a number between 0 and 1")
		}
		traceSampleRatio = ratio
	}

	return Config{
		HTTPAddr:            envOrDefault("HTTP_ADDR", defaultHTTPAddr),
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LogLevel:            logLevel,
		MaxJSONBodySize:     maxJSONBodySize,
		CacheResyncInterval: cacheResyncInterval,
		WeatherAPIKey:       strings.TrimSpace(os.Getenv("OPENWEATHERMAP_API_KEY")),
		WeatherBaseURL:      weatherBaseURL,
		WeatherTimeout:      weatherTimeout,
		RedisURL:            strings.TrimSpace(os.Getenv("REDIS_URL")),
		WeatherCacheTTL:     weatherCacheTTL,
		CheckRateLimit:      checkRateLimit,
		TraceSampleRatio:    traceSampleRatio,
	}, nil
}

func positiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return parsed, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
