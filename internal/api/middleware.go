package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/blockrank/blockrank/internal/config"
	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/metrics"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// RecoveryMiddleware converts handler panics into 500 responses.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorf("Panic in handler %s %s: %v", r.Method, r.URL.Path, rec)
					respondError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs each request with its status and duration, and
// feeds the per-endpoint request metrics.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			metrics.APIRequestInc(r.URL.Path, recorder.status)
			log.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, recorder.status, time.Since(start))
		})
	}
}

// CORSMiddleware emits CORS headers for allowed origins. A wildcard entry
// echoes the request origin, or "*" when the request carries none.
func CORSMiddleware(allowedOrigins []string) Middleware {
	wildcard := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case wildcard && origin != "":
				w.Header().Set("Access-Control-Allow-Origin", origin)
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin] && origin != "":
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			if w.Header().Get("Access-Control-Allow-Origin") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// tokenBucket is a minimal thread-safe token bucket.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(requestsPerMinute, burst int, now func() time.Time) *tokenBucket {
	if now == nil {
		now = time.Now
	}

	return &tokenBucket{
		tokens:     float64(burst),
		capacity:   float64(burst),
		refillRate: float64(requestsPerMinute) / 60.0,
		lastRefill: now(),
		now:        now,
	}
}

// take consumes one token if available. When empty it returns false along
// with the wait until the next token.
func (b *tokenBucket) take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))

	return false, wait
}

// RateLimitMiddleware throttles the query surface with a shared token
// bucket. Rejected requests get a 429 with Retry-After so clients can drive
// their cooldown state from it.
func RateLimitMiddleware(cfg *config.RateLimitConfig) Middleware {
	bucket := newTokenBucket(cfg.RequestsPerMinute, cfg.Burst, nil)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := bucket.take()
			if !ok {
				retryAfter := int(wait.Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				metrics.APIRateLimitedInc()
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
