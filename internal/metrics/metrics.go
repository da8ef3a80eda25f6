// Package metrics provides Prometheus instrumentation for the promoz server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only promoz metrics appear on the /metrics endpoint.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the promoz server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ChecksTotal         *prometheus.CounterVec
	WeatherLookupsTotal *prometheus.CounterVec
	RateLimitedTotal    prometheus.Counter
	CacheSize           prometheus.Gauge
	CacheLoadsTotal     prometheus.Counter
	CacheInvalidations  prometheus.Counter
}

// New creates and registers all promoz metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promoz_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "promoz_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promoz_checks_total",
			Help: "Total number of promo code eligibility checks by outcome.",
		}, []string{"status"}),

		WeatherLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promoz_weather_lookups_total",
			Help: "Total number of weather lookups performed during checks.",
		}, []string{"result"}),

		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promoz_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter.",
		}),

		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promoz_cache_size",
			Help: "Number of promo codes in the in-memory cache.",
		}),

		CacheLoadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promoz_cache_loads_total",
			Help: "Total number of full cache reloads from the store.",
		}),

		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promoz_cache_invalidations_total",
			Help: "Total number of NOTIFY-triggered cache invalidations.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ChecksTotal,
		m.WeatherLookupsTotal,
		m.RateLimitedTotal,
		m.CacheSize,
		m.CacheLoadsTotal,
		m.CacheInvalidations,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request count and latency labelled by the matched
// chi route pattern, so path parameters do not explode label cardinality.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
	})
}

// RecordCheck increments the check counter for an Accepted or Denied outcome.
func (m *Metrics) RecordCheck(status string) {
	m.ChecksTotal.WithLabelValues(status).Inc()
}

// RecordWeatherLookup increments the weather lookup counter.
func (m *Metrics) RecordWeatherLookup(result string) {
	m.WeatherLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRateLimited() {
	m.RateLimitedTotal.Inc()
}

// SetCacheSize updates the cache size gauge.
func (m *Metrics) SetCacheSize(size float64) {
	m.CacheSize.Set(size)
}

// IncCacheLoads increments the cache load counter.
func (m *Metrics) IncCacheLoads() {
	m.CacheLoadsTotal.Inc()
}

// IncCacheInvalidations increments the cache invalidation counter.
func (m *Metrics) IncCacheInvalidations() {
	m.CacheInvalidations.Inc()
}
