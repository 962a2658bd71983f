package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
)

// contextKey is the key type for values this package stores in request context.
type contextKey string

const callerKey contextKey = "auth_caller"

// Caller identifies which credential authenticated the request.
type Caller string

const (
	CallerExternal Caller = "external" // authenticated via x-api-key
	CallerInternal Caller = "internal" // authenticated via the internal trust header
)

// Config holds the two credentials a request may present.
type Config struct {
	// APIKey is the server API key external callers present via x-api-key.
	APIKey string
	// InternalTrustKey is the platform anonymous key internal callers present
	// via the internal trust header. Optional: when empty, only APIKey authenticates.
	InternalTrustKey string
}

// internalTrustHeader carries the platform anonymous key for trusted
// internal callers (e.g. the platform's own backend), as an alternative to
// the external x-api-key credential.
const internalTrustHeader = "x-internal-trust-key"

// Middleware authenticates each request against either the configured
// x-api-key or the internal trust header. Both comparisons run in constant
// time regardless of where the credentials mismatch, so a timing attack
// cannot be used to guess either key byte by byte.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("x-api-key")
			trustKey := r.Header.Get(internalTrustHeader)

			if cfg.APIKey != "" && constantTimeEqual(apiKey, cfg.APIKey) {
				next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), CallerExternal)))
				return
			}

			if cfg.InternalTrustKey != "" && constantTimeEqual(trustKey, cfg.InternalTrustKey) {
				next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), CallerInternal)))
				return
			}

			writeUnauthorized(w)
		})
	}
}

// constantTimeEqual compares two strings without leaking timing information
// about where they first differ. A length mismatch is checked up front
// (length is not a secret) before the constant-time body comparison runs.
func constantTimeEqual(got, want string) bool {
	if want == "" {
		return false
	}
	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"error":"Unauthorized: Invalid or missing API key"}`))
}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext returns the credential kind that authenticated the
// request, or "" if the context carries none (e.g. in a unit test that
// bypasses the middleware).
func CallerFromContext(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey).(Caller); ok {
		return c
	}
	return ""
}
