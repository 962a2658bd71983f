package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/ratelimit"
	"github.com/Avantemaps-pi/avante-verifier-internal/pkg/responders"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	responders.JSON(w, status, v)
}

// setCacheHeaders sets X-Cache and, on a hit, X-Cache-Expires.
func setCacheHeaders(w http.ResponseWriter, cached bool, expiresAt time.Time) {
	if cached {
		w.Header().Set("X-Cache", "HIT")
		w.Header().Set("X-Cache-Expires", expiresAt.UTC().Format(time.RFC3339))
		return
	}
	w.Header().Set("X-Cache", "MISS")
}

// setRateLimitHeaders sets the X-RateLimit-* headers from a wallet limiter result.
func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
