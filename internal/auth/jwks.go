// ABOUTME: TTL-bounded JWKS cache fetching signing keys from the identity provider
// ABOUTME: Refreshes on unknown key id so rotated keys are picked up promptly

package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxCachedKeys bounds the key cache; identity providers publish a handful
// of keys during rotation, so a small cap is plenty.
const maxCachedKeys = 16

// KeySetCache caches RSA public keys from a remote JWKS endpoint.
// Keys expire after the configured TTL and the set is re-fetched when a
// token references an unknown key id. The cache is an explicit dependency
// of the Gateway rather than package-global state so tests can inject
// their own endpoint.
type KeySetCache struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu   sync.Mutex // serializes refresh fetches
	keys *expirable.LRU[string, *rsa.PublicKey]
}

// jwksDocument is the wire format of a JWKS endpoint response.
type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// NewKeySetCache creates a key cache for the given JWKS URL.
// Keys are evicted ttl after they were fetched. A nil client falls back
// to a default with a sane timeout.
func NewKeySetCache(url string, ttl time.Duration, client *http.Client, logger *slog.Logger) *KeySetCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeySetCache{
		url:    url,
		client: client,
		logger: logger.With("component", "jwks"),
		keys:   expirable.NewLRU[string, *rsa.PublicKey](maxCachedKeys, nil, ttl),
	}
}

// Key returns the RSA public key for the given key id, fetching the key
// set from the remote endpoint if the id is not cached. An id that is
// still unknown after a fresh fetch is an error; the caller should treat
// the token as invalid.
func (c *KeySetCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := c.keys.Get(kid); ok {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	key, ok := c.keys.Get(kid)
	if !ok {
		return nil, fmt.Errorf("unknown signing key id %q", kid)
	}
	return key, nil
}

// Invalidate drops a single key from the cache. Used when verification
// fails against a cached key, forcing a re-fetch on the next lookup.
func (c *KeySetCache) Invalidate(kid string) {
	c.keys.Remove(kid)
}

// refresh fetches the key set and replaces cached entries.
func (c *KeySetCache) refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("building jwks request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding jwks response: %w", err)
	}

	added := 0
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			c.logger.Warn("skipping unparseable jwks key", "kid", k.Kid, "error", err)
			continue
		}
		c.keys.Add(k.Kid, pub)
		added++
	}

	c.logger.Debug("refreshed jwks key set", "keys", added)
	return nil
}

// parseRSAKey builds an rsa.PublicKey from the base64url modulus and exponent.
func parseRSAKey(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("zero exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
