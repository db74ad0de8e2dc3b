package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout is the default request timeout (30 seconds)
	DefaultRequestTimeout = 30 * time.Second
)

// Timeout creates a middleware that enforces a timeout on request handlers.
// A request that overruns gets a 503 with the shared JSON error envelope.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			// Replace the request context with timeout context
			r = r.WithContext(ctx)

			// TimeoutHandler writes the body straight to the original
			// writer on expiry, so the envelope and content type have to
			// be prepared up front.
			w.Header().Set("Content-Type", "application/json")
			handler := http.TimeoutHandler(next, timeout, timeoutBody())
			handler.ServeHTTP(w, r)
		})
	}
}

func timeoutBody() string {
	body, err := json.Marshal(ErrorResponse{
		Success:   false,
		Error:     "Request Timeout",
		Message:   "The request took too long to complete",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return `{"success":false,"error":"Request Timeout"}`
	}
	return string(body)
}
