package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/workhuntr/internal/api/response"
	"github.com/kiranshivaraju/workhuntr/internal/cache"
	"github.com/kiranshivaraju/workhuntr/internal/metrics"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = time.Minute
)

// RateLimit is a fixed-window per-key request limit backed by Redis.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	metrics        *metrics.Metrics
	now            func() time.Time
}

// NewRateLimit creates a new RateLimit middleware. m may be nil.
func NewRateLimit(c cache.Cache, requestsPerMin int, m *metrics.Metrics) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, metrics: m, now: time.Now}
}

// Limit applies rate limiting based on the key_prefix set by auth middleware.
// The window is aligned to the minute so every replica agrees on it.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := APIKeyFrom(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		prefix := key.KeyPrefix

		now := rl.now()
		windowStart := now.Truncate(rateWindow)
		reset := windowStart.Add(rateWindow)

		counterKey := cache.RateLimitKey(prefix + ":" + strconv.FormatInt(windowStart.Unix(), 10))
		count, err := rl.cache.IncrWithExpiry(r.Context(), counterKey, rateWindow)
		if err != nil {
			slog.Warn("rate limit counter unavailable", "key_prefix", prefix, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			rl.metrics.RateLimitRejected()
			retry := int(reset.Sub(now).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
