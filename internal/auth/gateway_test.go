// ABOUTME: Tests for bearer credential validation across all three trust sources
// ABOUTME: Covers JWT signature/audience/expiry, API key verification, and dev override

package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_HeaderErrors(t *testing.T) {
	key := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	gw := newTestGateway(t, srv.URL, "", false)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.Authenticate(context.Background(), tt.header)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestAuthenticate_ValidJWT(t *testing.T) {
	key := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	gw := newTestGateway(t, srv.URL, "", false)

	token := signToken(t, key, "kid-1", jwt.MapClaims{"tenant_id": "tenant-7"})
	id, err := gw.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)

	assert.Equal(t, "user-123", id.Subject)
	assert.Equal(t, "worker@example.com", id.Email)
	assert.Equal(t, "tenant-7", id.TenantID)
	assert.Equal(t, "Worker Bee", id.Name)
	assert.Equal(t, CredentialJWT, id.Kind)
	assert.Equal(t, token, id.Credential)
}

func TestAuthenticate_UntrustedKey(t *testing.T) {
	trusted := genKey(t)
	untrusted := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &trusted.PublicKey})
	gw := newTestGateway(t, srv.URL, "", false)

	// Signed by a key the JWKS endpoint never published.
	token := signToken(t, untrusted, "kid-1", nil)
	_, err := gw.Authenticate(context.Background(), "Bearer "+token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticate_ExpiredJWT(t *testing.T) {
	key := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	gw := newTestGateway(t, srv.URL, "", false)

	token := signToken(t, key, "kid-1", jwt.MapClaims{
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	_, err := gw.Authenticate(context.Background(), "Bearer "+token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticate_WrongAudience(t *testing.T) {
	key := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	gw := newTestGateway(t, srv.URL, "", false)

	token := signToken(t, key, "kid-1", jwt.MapClaims{"aud": "some-other-service"})
	_, err := gw.Authenticate(context.Background(), "Bearer "+token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticate_UnknownKid(t *testing.T) {
	key := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	gw := newTestGateway(t, srv.URL, "", false)

	token := signToken(t, key, "kid-99", nil)
	_, err := gw.Authenticate(context.Background(), "Bearer "+token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticate_MissingSub(t *testing.T) {
	key := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	gw := newTestGateway(t, srv.URL, "", false)

	token := signToken(t, key, "kid-1", jwt.MapClaims{"sub": ""})
	_, err := gw.Authenticate(context.Background(), "Bearer "+token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticate_APIKey(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		verify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"valid":true,"user":{"id":"user-9","email":"svc@example.com","tenant_id":"tenant-2","name":"Service Key"}}`))
		}))
		t.Cleanup(verify.Close)
		gw := newTestGateway(t, "http://unused.invalid", verify.URL, false)

		id, err := gw.Authenticate(context.Background(), "Bearer "+APIKeyPrefix+"abc123")
		require.NoError(t, err)
		assert.Equal(t, "user-9", id.Subject)
		assert.Equal(t, "svc@example.com", id.Email)
		assert.Equal(t, CredentialAPIKey, id.Kind)
	})

	t.Run("rejected key", func(t *testing.T) {
		verify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"valid":false}`))
		}))
		t.Cleanup(verify.Close)
		gw := newTestGateway(t, "http://unused.invalid", verify.URL, false)

		_, err := gw.Authenticate(context.Background(), "Bearer "+APIKeyPrefix+"revoked")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("verify endpoint error", func(t *testing.T) {
		verify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(verify.Close)
		gw := newTestGateway(t, "http://unused.invalid", verify.URL, false)

		_, err := gw.Authenticate(context.Background(), "Bearer "+APIKeyPrefix+"whatever")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
}

func TestAuthenticateRequest_DevOverride(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		gw := newTestGateway(t, "http://unused.invalid", "http://unused.invalid", true)

		req := httptest.NewRequest(http.MethodGet, "/api/tasks/42/status", nil)
		req.Header.Set(DevIdentityHeader, "local-dev")

		id, err := gw.AuthenticateRequest(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "local-dev", id.Subject)
		assert.Equal(t, CredentialDevOverride, id.Kind)
	})

	t.Run("disabled by default", func(t *testing.T) {
		gw := newTestGateway(t, "http://unused.invalid", "http://unused.invalid", false)

		req := httptest.NewRequest(http.MethodGet, "/api/tasks/42/status", nil)
		req.Header.Set(DevIdentityHeader, "local-dev")

		_, err := gw.AuthenticateRequest(context.Background(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestIdentityContext(t *testing.T) {
	id := &Identity{Subject: "user-1", Kind: CredentialJWT}
	ctx := WithIdentity(context.Background(), id)

	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.Subject)

	assert.Nil(t, FromContext(context.Background()))
	assert.Panics(t, func() { MustFromContext(context.Background()) })
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrUnauthenticated, ErrInvalidCredential))
}
