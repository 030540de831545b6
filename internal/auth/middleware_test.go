// ABOUTME: Tests for the HTTP authentication middleware
// ABOUTME: Verifies challenge responses and per-request identity propagation

package auth

import (
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	key := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	gw := newTestGateway(t, srv.URL, "", false)

	var seen *Identity
	handler := Middleware(gw)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token reaches handler with identity", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/42/status", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, key, "kid-1", nil))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "user-123", seen.Subject)
	})

	t.Run("missing header yields challenge", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/42/status", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		assert.Contains(t, rec.Body.String(), "authentication required")
		assert.Nil(t, seen)
	})

	t.Run("bad token yields invalid credential", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/42/status", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid credential")
		assert.Nil(t, seen)
	})
}
