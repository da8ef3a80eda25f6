package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}

	m.CacheLoadsTotal.Inc()
	fams, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(fams) == 0 {
		t.Fatal("expected at least one metric family after increment")
	}
}

func TestRecordCheck(t *testing.T) {
	m := New()

	m.RecordCheck("Accepted")
	m.RecordCheck("Accepted")
	m.RecordCheck("Denied")

	if v := testutil.ToFloat64(m.ChecksTotal.WithLabelValues("Accepted")); v != 2 {
		t.Fatalf("expected accepted count 2, got %v", v)
	}
	if v := testutil.ToFloat64(m.ChecksTotal.WithLabelValues("Denied")); v != 1 {
		t.Fatalf("expected denied count 1, got %v", v)
	}
}

func TestRecordWeatherLookup(t *testing.T) {
	m := New()

	m.RecordWeatherLookup("ok")
	m.RecordWeatherLookup("error")
	m.RecordWeatherLookup("error")

	if v := testutil.ToFloat64(m.WeatherLookupsTotal.WithLabelValues("error")); v != 2 {
		t.Fatalf("expected error count 2, got %v", v)
	}
}

func TestCacheMetrics(t *testing.T) {
	m := New()

	m.SetCacheSize(5)
	m.IncCacheLoads()
	m.IncCacheLoads()
	m.IncCacheInvalidations()
	m.IncRateLimited()

	if v := testutil.ToFloat64(m.CacheSize); v != 5 {
		t.Fatalf("expected cache size 5, got %v", v)
	}
	if v := testutil.ToFloat64(m.CacheLoadsTotal); v != 2 {
		t.Fatalf("expected cache loads 2, got %v", v)
	}
	if v := testutil.ToFloat64(m.CacheInvalidations); v != 1 {
		t.Fatalf("expected cache invalidations 1, got %v", v)
	}
	if v := testutil.ToFloat64(m.RateLimitedTotal); v != 1 {
		t.Fatalf("expected rate limited 1, got %v", v)
	}
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()

	router := chi.NewRouter()
	router.Use(m.HTTPMiddleware)
	router.Get("/v1/promo-codes/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, name := range []string{"happy10", "spring20"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/promo-codes/"+name, nil))
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/promo-codes/{name}", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests for route pattern, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheLoadsTotal.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Result().Body)
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(string(body), "promoz_cache_loads_total") {
		t.Fatal("expected response to contain promoz_cache_loads_total")
	}
}
