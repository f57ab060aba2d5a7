package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopscribe/shopscribe/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
}

// DefaultLimit is the gateway-wide limit: 30 requests per sliding minute per
// client key.
var DefaultLimit = RateLimitConfig{
	RequestsPerWindow: 30,
	Window:            time.Minute,
}

// WindowStore counts requests per key and window across replicas. The
// persistent store implements this with a conditional read-modify-write, so
// the limit holds no matter which replica serves the request.
type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, windowStart time.Time) (int, error)
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, subject id).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fallback to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// SubjectKeyExtractor extracts the authenticated subject id from the request
// context. Returns empty string for unauthenticated requests.
func SubjectKeyExtractor(r *http.Request) string {
	return SubjectFromContext(r.Context())
}

// CompositeKeyExtractor combines multiple key extractors, returning the first
// non-empty key. Example: CompositeKeyExtractor(SubjectKeyExtractor,
// IPKeyExtractor) keys authenticated traffic by subject and anonymous
// traffic by IP.
func CompositeKeyExtractor(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				return key
			}
		}
		return ""
	}
}

// localLimiter manages in-process token buckets per key. It is only a
// pre-filter in front of the store-backed window: it saves store writes when
// one replica alone sees a burst, but the store count is authoritative.
type localLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	mu       sync.Mutex
	// Cleanup old limiters periodically
	lastCleanup time.Time
}

// getLimiter retrieves or creates a rate limiter for the given key
func (rl *localLimiter) getLimiter(key string) *rate.Limiter {
	// Fast path: limiter already exists
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	// Slow path: create new limiter
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	actual, _ := rl.limiters.LoadOrStore(key, limiter)

	// Periodic cleanup to prevent memory leak
	rl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup removes old limiters that haven't been used recently
// This prevents memory leaks from accumulating limiters for ephemeral keys
func (rl *localLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Only cleanup once every 5 minutes
	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}

	rl.lastCleanup = time.Now()

	// Remove limiters that have full token buckets (haven't been used
	// recently). If a limiter would allow burst requests, it's been idle.
	rl.limiters.Range(func(key, value any) bool {
		limiter := value.(*rate.Limiter)
		if limiter.Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware enforces the per-key sliding window. Requests pass a
// local token bucket first, then the shared WindowStore count; exceeding
// either yields 429 with Retry-After.
//
// When the WindowStore errors, the request proceeds on the local bucket's
// admission alone and a warning is logged. A store outage degrades the
// limit to per-replica enforcement rather than blocking all traffic.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor, store WindowStore) Middleware {
	ratePerSecond := float64(config.RequestsPerWindow) / config.Window.Seconds()

	local := &localLimiter{
		rate:        rate.Limit(ratePerSecond),
		burst:       config.RequestsPerWindow,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyExtractor(r)
			if key == "" {
				// If we can't extract a key, allow the request but log it
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now().UTC()
			windowStart := now.Truncate(config.Window)
			retryAfter := int(windowStart.Add(config.Window).Sub(now).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}

			if !local.getLimiter(key).Allow() {
				writeRateLimited(w, log, key, r.URL.Path, config, retryAfter)
				return
			}

			if store != nil {
				count, err := store.IncrementWindow(ctx, key, windowStart)
				if err != nil {
					// The shared counter is unavailable; the local bucket
					// already admitted the request, so let it through.
					log.Warn("rate limit store unavailable", "err", err)
					next.ServeHTTP(w, r)
					return
				}
				if count > config.RequestsPerWindow {
					writeRateLimited(w, log, key, r.URL.Path, config, retryAfter)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, log *slog.Logger, key, path string, config RateLimitConfig, retryAfter int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Window", config.Window.String())

	log.Warn("rate limit exceeded",
		"key", key,
		"endpoint", path,
		"retry_after", retryAfter,
	)

	WriteJSON(w, http.StatusTooManyRequests, map[string]string{
		"error": "rate limit exceeded, please retry later",
	})
}

// RateLimitByIP limits by client IP only.
func RateLimitByIP(config RateLimitConfig, store WindowStore) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor, store)
}

// RateLimitByClient limits by authenticated subject, falling back to IP for
// anonymous traffic.
func RateLimitByClient(config RateLimitConfig, store WindowStore) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(
		SubjectKeyExtractor,
		IPKeyExtractor,
	), store)
}
