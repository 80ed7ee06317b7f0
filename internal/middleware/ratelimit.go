package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/runboard/runboard/internal/ratelimit"
	"github.com/runboard/runboard/internal/ui"
)

// RateLimit rejects requests from a client IP once limiter has no room
// for it, answering 429 with Retry-After.
func RateLimit(limiter *ratelimit.Limiter) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// Get real IP (handle proxies)
			ip := getClientIP(r)

			if !limiter.Allow(ip) {
				wait := limiter.RetryAfter(ip)
				slog.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"retry_after", wait,
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				ui.JSONError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later.")
				return
			}

			next(w, r)
		}
	}
}

// getClientIP extracts real client IP from request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (proxy/load balancer)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// Take first IP in list
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fallback to RemoteAddr
	ip := r.RemoteAddr
	// Remove port if present
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	return ip
}
