package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/openrufus/rufus/internal/config"
	"github.com/openrufus/rufus/internal/logger"
	"github.com/openrufus/rufus/pkg/httpext"
	"github.com/openrufus/rufus/pkg/ratelimit"
)

// RateLimit limits callers per IP using the configuration stored under
// limitKey.
func RateLimit(limitKey string) func(http.Handler) http.Handler {
	return RateLimitWith(limitKey, config.GetRateLimitConfig(limitKey))
}

func RateLimitWith(limitKey string, cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := ratelimit.NewLimiter(cfg.Window, cfg.MaxHits)
	log := logger.For(logger.MIDDLEWARE)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !limiter.Allow(ip) {
				wait := limiter.RetryAfter(ip)
				log.Warn().Str("ip", ip).Str("limit", limitKey).Dur("retry_after", wait).Msg("Rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				httpext.JsonErrorWithDetails(w, http.StatusTooManyRequests, httpext.ErrorResponse{
					Error:            "Rate limit exceeded",
					ErrorDescription: fmt.Sprintf("at most %d requests per %s", cfg.MaxHits, cfg.Window),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop when behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
