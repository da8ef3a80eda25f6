// Package weather resolves the current weather of a town for promo code
// checks. The default provider is OpenWeatherMap; [Cache] adds a Redis
// read-through layer in front of any provider.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/matt-riley/promoz/internal/core"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org"
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 4 << 10
)

var ErrTownNotFound = errors.New("town not found")

// Conditions is the subset of a weather report a promo code can restrict on.
type Conditions struct {
	Category    core.Weather `json:"category"`
	Temperature float64      `json:"temperature"`
}

// APIError is returned when OpenWeatherMap responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openweathermap: HTTP %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	APIKey string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// HTTPClient is optional; the default client is instrumented with otelhttp.
	HTTPClient *http.Client
	Timeout    time.Duration
}

type OpenWeatherMap struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func New(cfg Config) (*OpenWeatherMap, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openweathermap: api key is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("openweathermap: invalid base url %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &OpenWeatherMap{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

type geoLocation struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type currentWeather struct {
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

// CurrentWeather geocodes town and returns its current conditions in metric
// units.
func (c *OpenWeatherMap) CurrentWeather(ctx context.Context, town string) (Conditions, error) {
	town = strings.TrimSpace(town)
	if town == "" {
		return Conditions{}, ErrTownNotFound
	}

	var locations []geoLocation
	if err := c.get(ctx, "/geo/1.0/direct", url.Values{
		"q":     {town},
		"limit": {"1"},
	}, &locations); err != nil {
		return Conditions{}, fmt.Errorf("geocode %q: %w", town, err)
	}
	if len(locations) == 0 {
		return Conditions{}, fmt.Errorf("geocode %q: %w", town, ErrTownNotFound)
	}

	var report currentWeather
	if err := c.get(ctx, "/data/2.5/weather", url.Values{
		"lat":   {strconv.FormatFloat(locations[0].Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(locations[0].Lon, 'f', -1, 64)},
		"units": {"metric"},
	}, &report); err != nil {
		return Conditions{}, fmt.Errorf("current weather %q: %w", town, err)
	}
	if len(report.Weather) == 0 {
		return Conditions{}, fmt.Errorf("current weather %q: empty report", town)
	}

	category, ok := core.ParseWeather(report.Weather[0].Main)
	if !ok {
		return Conditions{}, fmt.Errorf("current weather %q: unknown category %q", town, report.Weather[0].Main)
	}

	return Conditions{Category: category, Temperature: report.Main.Temp}, nil
}

func (c *OpenWeatherMap) get(ctx context.Context, path string, query url.Values, out any) error {
	query.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
