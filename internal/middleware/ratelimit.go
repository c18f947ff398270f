package middleware

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

type rateLimitedBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RateLimit rejects requests beyond rps per second (bursts up to burst) with 429.
// A non-positive rps disables limiting.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(rateLimitedBody{
					Code:    "rate-limited",
					Message: "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
