// Package main is the entry point for the promoz server.
//
// The bootstrap sequence is:
//  1. Load configuration from environment variables.
//  2. Open the promo code store: PostgreSQL (with migrations) when
//     DATABASE_URL is set, otherwise an in-memory store seeded with samples.
//  3. Build the weather provider, fronted by Redis when REDIS_URL is set.
//  4. Create the service (eagerly loading the promo code cache).
//  5. Start the HTTP server.
//  6. Wait for SIGINT/SIGTERM or a serve failure, then gracefully shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/matt-riley/promoz/internal/config"
	"github.com/matt-riley/promoz/internal/logging"
	"github.com/matt-riley/promoz/internal/metrics"
	"github.com/matt-riley/promoz/internal/middleware"
	"github.com/matt-riley/promoz/internal/repository"
	"github.com/matt-riley/promoz/internal/server"
	"github.com/matt-riley/promoz/internal/service"
	"github.com/matt-riley/promoz/internal/tracing"
	"github.com/matt-riley/promoz/internal/weather"
)

const (
	shutdownTimeout       = 10 * time.Second
	redisPingTimeout      = 5 * time.Second
	httpReadHeaderTimeout = 5 * time.Second
	httpReadTimeout       = 30 * time.Second
	httpIdleTimeout       = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	shutdownTracer, err := tracing.Init(context.Background(), cfg.TraceSampleRatio)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown error", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	repo, closeRepo, err := openRepository(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	provider, closeWeather, err := newWeatherProvider(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeWeather()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithCheckRecorder(m.RecordCheck),
		service.WithWeatherLookupRecorder(m.RecordWeatherLookup),
		service.WithCacheMetrics(m.IncCacheLoads, m.IncCacheInvalidations, m.SetCacheSize),
		service.WithCacheResyncInterval(cfg.CacheResyncInterval),
	}
	if provider != nil {
		opts = append(opts, service.WithWeatherProvider(provider))
	}

	svc, err := service.New(ctx, repo, opts...)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}

	if cfg.DatabaseURL == "" {
		if err := seedPromoCodes(ctx, svc, log); err != nil {
			return fmt.Errorf("seed promo codes: %w", err)
		}
	}

	checkLimiter := middleware.NewRateLimiter(ctx, cfg.CheckRateLimit)
	defer checkLimiter.Stop()

	apiHandler := server.NewHTTPHandler(svc,
		server.WithLogger(log),
		server.WithMetrics(m),
		server.WithMaxJSONBodySize(cfg.MaxJSONBodySize),
		server.WithCheckRateLimiter(checkLimiter),
	)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(apiHandler, "promoz-http"),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen HTTP %s: %w", cfg.HTTPAddr, err)
	}
	defer httpListener.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}
		return nil
	})

	log.Info("server started",
		"http_addr", cfg.HTTPAddr,
		"store", storeName(cfg),
		"weather", cfg.WeatherEnabled(),
		"weather_cache", cfg.RedisURL != "",
	)

	return g.Wait()
}

// openRepository connects to PostgreSQL when configured and falls back to the
// in-memory store otherwise. The returned close function is always non-nil.
func openRepository(ctx context.Context, cfg config.Config, m *metrics.Metrics, log *slog.Logger) (service.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL is not set, promo codes will not survive a restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	metrics.RegisterPoolMetrics(m.Registry, pool)

	return repository.NewPostgresRepository(pool), pool.Close, nil
}

// newWeatherProvider returns a nil provider when no API key is configured;
// checks then run without weather. The returned close function is always
// non-nil.
func newWeatherProvider(ctx context.Context, cfg config.Config, log *slog.Logger) (service.WeatherProvider, func(), error) {
	if !cfg.WeatherEnabled() {
		log.Info("OPENWEATHERMAP_API_KEY is not set, weather restrictions cannot be met")
		return nil, func() {}, nil
	}

	owm, err := weather.New(weather.Config{
		APIKey:  cfg.WeatherAPIKey,
		BaseURL: cfg.WeatherBaseURL,
		Timeout: cfg.WeatherTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init weather provider: %w", err)
	}

	if cfg.RedisURL == "" {
		return owm, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	closeClient := func() {
		if err := client.Close(); err != nil {
			log.Error("redis close error", "error", err)
		}
	}
	cache := weather.NewCache(owm, client,
		weather.WithCacheTTL(cfg.WeatherCacheTTL),
		weather.WithCacheLogger(log),
	)
	return cache, closeClient, nil
}

func storeName(cfg config.Config) string {
	if cfg.DatabaseURL == "" {
		return "memory"
	}
	return "postgres"
}
