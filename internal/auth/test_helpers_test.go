// ABOUTME: Shared test helpers for signing JWTs and serving a fake JWKS endpoint
// ABOUTME: Used by gateway, jwks, and middleware tests

package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://sso.test"
	testAudience = "hive-orchestrator"
)

// genKey generates a test RSA key pair.
func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// jwksHandler serves a JWKS document for the given keys, keyed by kid.
func jwksHandler(keys map[string]*rsa.PublicKey) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := jwksDocument{}
		for kid, pub := range keys {
			doc.Keys = append(doc.Keys, jwksKey{
				Kty: "RSA",
				Kid: kid,
				Use: "sig",
				Alg: "RS256",
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}

// newJWKSServer starts a JWKS endpoint serving the given keys.
func newJWKSServer(t *testing.T, keys map[string]*rsa.PublicKey) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(jwksHandler(keys))
	t.Cleanup(srv.Close)
	return srv
}

// signToken signs an RS256 token with the given key and claims overlaid
// on a valid default claim set.
func signToken(t *testing.T, key *rsa.PrivateKey, kid string, overrides jwt.MapClaims) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "user-123",
		"email": "worker@example.com",
		"name":  "Worker Bee",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// newTestGateway wires a Gateway against the given JWKS server and an
// optional API key verify endpoint.
func newTestGateway(t *testing.T, jwksURL, verifyURL string, devOverride bool) *Gateway {
	t.Helper()
	keys := NewKeySetCache(jwksURL, time.Hour, nil, nil)
	return NewGateway(Options{
		Issuer:          testIssuer,
		Audience:        testAudience,
		APIKeyVerifyURL: verifyURL,
		DevOverride:     devOverride,
	}, keys, nil, nil)
}
