package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rallysight/rallysight/internal/api/response"
	"github.com/rallysight/rallysight/internal/cache"
)

const defaultUploadsPerMinute = 30

// RateLimit throttles expensive endpoints per client address via Redis.
// With a nil cache it is a pass-through, so the server works without Redis.
type RateLimit struct {
	cache  cache.Cache
	perMin int
}

// NewRateLimit creates a RateLimit middleware. c may be nil to disable
// limiting entirely.
func NewRateLimit(c cache.Cache, perMin int) *RateLimit {
	if perMin <= 0 {
		perMin = defaultUploadsPerMinute
	}
	return &RateLimit{cache: c, perMin: perMin}
}

// Limit applies the per-minute window keyed by the client host.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cache == nil {
			next.ServeHTTP(w, r)
			return
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(host), 60*time.Second)
		if err != nil {
			// On Redis error, allow the request (fail open)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.perMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(60*time.Second).Unix(), 10))

		if count > int64(rl.perMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many uploads", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
