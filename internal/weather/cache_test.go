package weather

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matt-riley/promoz/internal/core"
)

type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	readErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		return redis.NewStringResult("", f.readErr)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type countingProvider struct {
	calls      int
	conditions Conditions
	err        error
}

func (p *countingProvider) CurrentWeather(_ context.Context, _ string) (Conditions, error) {
	p.calls++
	return p.conditions, p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{conditions: Conditions{Category: core.WeatherAsh, Temperature: 18}}
	client := newFakeRedis()
	cache := NewCache(provider, client, WithCacheTTL(time.Minute), WithCacheLogger(discardLogger()))

	for _, town := range []string{"Lyon", "lyon", " LYON "} {
		got, err := cache.CurrentWeather(ctx, town)
		if err != nil {
			t.Fatalf("CurrentWeather(%q) error = %v", town, err)
		}
		if got != provider.conditions {
			t.Fatalf("CurrentWeather(%q) = %#v, want %#v", town, got, provider.conditions)
		}
	}

	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls)
	}
	if ttl := client.ttls["weather:town:lyon"]; ttl != time.Minute {
		t.Fatalf("ttl = %v, want %v", ttl, time.Minute)
	}
}

func TestCacheFallsBackWhenRedisFails(t *testing.T) {
	provider := &countingProvider{conditions: Conditions{Category: core.WeatherRain, Temperature: 4}}
	client := newFakeRedis()
	client.readErr = errors.New("connection refused")
	cache := NewCache(provider, client, WithCacheLogger(discardLogger()))

	for range 2 {
		if _, err := cache.CurrentWeather(context.Background(), "Brest"); err != nil {
			t.Fatalf("CurrentWeather() error = %v", err)
		}
	}
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", provider.calls)
	}
}

func TestCacheDoesNotStoreProviderErrors(t *testing.T) {
	provider := &countingProvider{err: ErrTownNotFound}
	client := newFakeRedis()
	cache := NewCache(provider, client, WithCacheLogger(discardLogger()))

	if _, err := cache.CurrentWeather(context.Background(), "Atlantis"); !errors.Is(err, ErrTownNotFound) {
		t.Fatalf("CurrentWeather() error = %v, want %v", err, ErrTownNotFound)
	}
	if len(client.values) != 0 {
		t.Fatalf("cached values = %v, want none", client.values)
	}
}

func TestCacheDiscardsUnreadableEntries(t *testing.T) {
	provider := &countingProvider{conditions: Conditions{Category: core.WeatherSnow, Temperature: -2}}
	client := newFakeRedis()
	client.values["weather:town:oslo"] = "not json"
	cache := NewCache(provider, client, WithCacheLogger(discardLogger()))

	got, err := cache.CurrentWeather(context.Background(), "Oslo")
	if err != nil {
		t.Fatalf("CurrentWeather() error = %v", err)
	}
	if got != provider.conditions || provider.calls != 1 {
		t.Fatalf("CurrentWeather() = %#v after %d calls, want provider result", got, provider.calls)
	}
}
