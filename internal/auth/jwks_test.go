// ABOUTME: Tests for the JWKS key cache
// ABOUTME: Covers lazy fetch, unknown kid refresh, invalidation, and bad endpoints

package auth

import (
	"context"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySetCache_FetchesOnMiss(t *testing.T) {
	key := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})

	cache := NewKeySetCache(srv.URL, time.Hour, nil, nil)
	pub, err := cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, pub.N)
}

func TestKeySetCache_CachesAcrossLookups(t *testing.T) {
	key := genKey(t)
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		jwksHandler(map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})(w, r)
	}))
	t.Cleanup(srv.Close)

	cache := NewKeySetCache(srv.URL, time.Hour, nil, nil)
	for i := 0; i < 5; i++ {
		_, err := cache.Key(context.Background(), "kid-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestKeySetCache_UnknownKid(t *testing.T) {
	key := genKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})

	cache := NewKeySetCache(srv.URL, time.Hour, nil, nil)
	_, err := cache.Key(context.Background(), "kid-rotated-away")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown signing key")
}

func TestKeySetCache_RefetchesAfterInvalidate(t *testing.T) {
	key := genKey(t)
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		jwksHandler(map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})(w, r)
	}))
	t.Cleanup(srv.Close)

	cache := NewKeySetCache(srv.URL, time.Hour, nil, nil)
	_, err := cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)

	cache.Invalidate("kid-1")
	_, err = cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestKeySetCache_EndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cache := NewKeySetCache(srv.URL, time.Hour, nil, nil)
	_, err := cache.Key(context.Background(), "kid-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestKeySetCache_SkipsNonRSAKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[{"kty":"EC","kid":"ec-1","crv":"P-256"}]}`))
	}))
	t.Cleanup(srv.Close)

	cache := NewKeySetCache(srv.URL, time.Hour, nil, nil)
	_, err := cache.Key(context.Background(), "ec-1")
	require.Error(t, err)
}
