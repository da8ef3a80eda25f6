package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerMinute is the default per-IP request budget.
	DefaultRequestsPerMinute = 60

	// DefaultMaxTrackedIPs is the maximum number of IPs tracked to prevent unbounded memory.
	DefaultMaxTrackedIPs = 10000

	cleanupInterval = time.Minute
	staleThreshold  = 5 * time.Minute
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP. Buckets refill at
// requestsPerMinute/60 per second and burst up to requestsPerMinute.
type RateLimiter struct {
	mu                sync.Mutex
	entries           map[string]*ipEntry
	requestsPerMinute int
	maxTrackedIPs     int
	now               func() time.Time
	cancel            context.CancelFunc
}

// NewRateLimiter creates a per-IP rate limiter. Pass 0 to use
// DefaultRequestsPerMinute. The cleanup goroutine stops with ctx or Stop.
func NewRateLimiter(ctx context.Context, requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	ctx, cancel := context.WithCancel(ctx)
	rl := &RateLimiter{
		entries:           make(map[string]*ipEntry),
		requestsPerMinute: requestsPerMinute,
		maxTrackedIPs:     DefaultMaxTrackedIPs,
		now:               time.Now,
		cancel:            cancel,
	}
	go rl.cleanup(ctx)
	return rl
}

// Allow consumes a token for ip and reports whether the request may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	return rl.getOrCreateEntryLocked(ip, now).limiter.AllowN(now, 1)
}

// RetryAfter is the whole number of seconds until a single token refills.
func (rl *RateLimiter) RetryAfter() int {
	seconds := 60 / rl.requestsPerMinute
	if seconds < 1 {
		return 1
	}
	return seconds
}

func (rl *RateLimiter) getOrCreateEntryLocked(ip string, now time.Time) *ipEntry {
	e, ok := rl.entries[ip]
	if !ok {
		if len(rl.entries) >= rl.maxTrackedIPs {
			rl.evictOldestLocked()
		}
		e = &ipEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.requestsPerMinute)/60.0), rl.requestsPerMinute),
		}
		rl.entries[ip] = e
	}
	e.lastSeen = now
	return e
}

// Stop cancels the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.cancel()
}

func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.removeStale()
		}
	}
}

func (rl *RateLimiter) removeStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, e := range rl.entries {
		if now.Sub(e.lastSeen) > staleThreshold {
			delete(rl.entries, ip)
		}
	}
}

func (rl *RateLimiter) evictOldestLocked() {
	var oldestIP string
	var oldestTime time.Time
	for ip, e := range rl.entries {
		if oldestIP == "" || e.lastSeen.Before(oldestTime) {
			oldestIP = ip
			oldestTime = e.lastSeen
		}
	}
	if oldestIP != "" {
		delete(rl.entries, oldestIP)
	}
}

// HTTPRateLimit rejects requests over the per-IP budget with 429. onLimited,
// when non-nil, is called for every rejected request.
func HTTPRateLimit(rl *RateLimiter, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.Allow(ExtractIP(r.RemoteAddr)) {
				next.ServeHTTP(w, r)
				return
			}

			if onLimited != nil {
				onLimited()
			}
			LoggerFromContext(r.Context()).WarnContext(r.Context(), "rate limit exceeded",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter()))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
		})
	}
}

// ExtractIP extracts the IP address from a RemoteAddr string, stripping the port.
func ExtractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr // already just an IP
	}
	return host
}
