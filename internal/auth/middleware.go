// ABOUTME: HTTP middleware for bearer token authentication on API endpoints
// ABOUTME: Resolves an Identity per request and attaches it to the request context

package auth

import (
	"errors"
	"net/http"
)

// Middleware creates an HTTP middleware that authenticates requests
// through the Gateway. The resolved Identity is attached to the request
// context for the duration of that request only. Failed authentication
// yields a 401 with a Bearer challenge; the error taxonomy stays inside
// the JSON body.
func Middleware(gateway *Gateway) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := gateway.AuthenticateRequest(r.Context(), r)
			if err != nil {
				writeChallenge(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// writeChallenge writes the 401 authentication challenge response.
func writeChallenge(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="hive-orchestrator"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	msg := "authentication required"
	if errors.Is(err, ErrInvalidCredential) {
		msg = "invalid credential"
	}
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
