package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"loanportal/internal/util"
)

// Middleware rejects requests over quota with 429. The key is the route
// scope plus the caller ip.
func Middleware(l *FixedWindowLimiter, scope string, trusted *util.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := l.Allow(r.Context(), scope+":"+util.ClientIP(r, trusted))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":     "too many requests",
				"code":      "RATE_LIMITED",
				"requestId": util.RequestIDFromRequest(r),
			})
		})
	}
}
