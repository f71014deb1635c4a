package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/medassist/med-ai/backend/internal/ratelimit"
	"github.com/medassist/med-ai/backend/pkg/utils"
)

// CORS allows browser clients on other origins to reach the API.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientID resolves the client identity for rate limiting: the first
// x-forwarded-for value, then x-real-ip, then "unknown".
func ClientID(r *http.Request) string {
	if forwarded := r.Header.Get("x-forwarded-for"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if id := strings.TrimSpace(first); id != "" {
			return id
		}
	}
	if real := strings.TrimSpace(r.Header.Get("x-real-ip")); real != "" {
		return real
	}
	return "unknown"
}

// RateLimit applies a fixed-window limiter to mutating requests at the
// inbound edge. Denials answer 429 with the standard headers.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			_, err := limiter.Admit(r.Context(), ClientID(r))
			var denied *ratelimit.DeniedError
			if errors.As(err, &denied) {
				w.Header().Set("Retry-After", strconv.Itoa(denied.RetryAfterSeconds()))
				w.Header().Set("X-RateLimit-Remaining", "0")
				utils.RespondError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
