package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/http/response"
)

// rateLimitMiddleware throttles mutating requests per caller.
// Reads and health checks are never limited.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || !isMutation(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		key := rateLimitKey(r)
		if !s.limiter.Allow(key) {
			s.logger.Warn("Rate limit exceeded",
				"key", key,
				"method", r.Method,
				"path", r.URL.Path,
			)
			response.TooManyRequests(w, "Too many requests. Please try again later.", s.retryAfter(), s.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) retryAfter() string {
	if s.opts.RateLimit <= 0 {
		return ""
	}
	return strconv.Itoa(int(math.Ceil(1 / s.opts.RateLimit)))
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// rateLimitKey buckets authenticated callers by principal and anonymous
// callers by client address, so users behind one NAT don't share a bucket.
func rateLimitKey(r *http.Request) string {
	if p := principalFrom(r.Context()); !p.IsZero() {
		return "user:" + strconv.FormatInt(p.UserID, 10)
	}
	return "ip:" + clientIP(r)
}

// clientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
