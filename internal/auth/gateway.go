// ABOUTME: Bearer credential validation for JWTs, API keys, and the dev override
// ABOUTME: Resolves an Identity per request without any shared secret with the SSO

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIKeyPrefix is the reserved literal prefix for static API keys.
// Tokens without this prefix are treated as JWTs.
const APIKeyPrefix = "hive_ak_"

// DevIdentityHeader carries the synthetic identity when the dev override
// is enabled in configuration.
const DevIdentityHeader = "X-Hive-Dev-Identity"

// Options configures the Gateway.
type Options struct {
	Issuer          string // expected "iss" claim
	Audience        string // expected "aud" claim
	APIKeyVerifyURL string // identity provider endpoint for API key verification
	DevOverride     bool   // enable the dev identity header bypass
}

// Gateway validates bearer credentials on inbound requests.
// It holds no per-request state; the resolved Identity is attached to the
// request context by the middleware and discarded when the request ends.
type Gateway struct {
	opts   Options
	keys   *KeySetCache
	client *http.Client
	logger *slog.Logger
}

// NewGateway creates a Gateway using the given key cache for JWT
// verification. A nil client falls back to a default with a timeout.
func NewGateway(opts Options, keys *KeySetCache, client *http.Client, logger *slog.Logger) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		opts:   opts,
		keys:   keys,
		client: client,
		logger: logger.With("component", "auth"),
	}
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Authenticate validates the Authorization header value and resolves an
// Identity. Missing or malformed headers fail with ErrUnauthenticated;
// credentials that fail verification fail with ErrInvalidCredential.
func (g *Gateway) Authenticate(ctx context.Context, authHeader string) (*Identity, error) {
	token, errMsg := extractBearerToken(authHeader)
	if errMsg != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, errMsg)
	}

	if strings.HasPrefix(token, APIKeyPrefix) {
		return g.verifyAPIKey(ctx, token)
	}
	return g.verifyJWT(ctx, token)
}

// AuthenticateRequest resolves an Identity for an HTTP request, honoring
// the dev override header when enabled. Every override use is logged at
// WARN so it cannot slip into production unnoticed.
func (g *Gateway) AuthenticateRequest(ctx context.Context, r *http.Request) (*Identity, error) {
	if g.opts.DevOverride {
		if subject := r.Header.Get(DevIdentityHeader); subject != "" {
			g.logger.Warn("dev identity override in use", "subject", subject, "path", r.URL.Path)
			return &Identity{
				Subject:    subject,
				Name:       subject,
				Credential: subject,
				Kind:       CredentialDevOverride,
			}, nil
		}
	}
	return g.Authenticate(ctx, r.Header.Get("Authorization"))
}

// verifyJWT validates signature, issuer, audience, and expiry against the
// cached JWKS key set and maps claims to an Identity.
func (g *Gateway) verifyJWT(ctx context.Context, tokenString string) (*Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(g.opts.Issuer),
		jwt.WithAudience(g.opts.Audience),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing kid header")
		}
		return g.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token invalid", ErrInvalidCredential)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidCredential)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidCredential)
	}

	id := &Identity{
		Subject:    sub,
		Credential: tokenString,
		Kind:       CredentialJWT,
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if tenant, ok := claims["tenant_id"].(string); ok {
		id.TenantID = tenant
	}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	return id, nil
}

// apiKeyVerifyRequest is the request body sent to the verification endpoint.
type apiKeyVerifyRequest struct {
	Key string `json:"key"`
}

// apiKeyVerifyResponse is the identity provider's verification response.
type apiKeyVerifyResponse struct {
	Valid bool `json:"valid"`
	User  struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		TenantID string `json:"tenant_id"`
		Name     string `json:"name"`
	} `json:"user"`
}

// verifyAPIKey validates a static API key by remote call to the identity
// provider. Non-2xx responses and valid=false both fail verification.
func (g *Gateway) verifyAPIKey(ctx context.Context, key string) (*Identity, error) {
	body, err := json.Marshal(apiKeyVerifyRequest{Key: key})
	if err != nil {
		return nil, fmt.Errorf("encoding verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.opts.APIKeyVerifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: verify call failed: %v", ErrInvalidCredential, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: verify endpoint returned status %d", ErrInvalidCredential, resp.StatusCode)
	}

	var verifyResp apiKeyVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verifyResp); err != nil {
		return nil, fmt.Errorf("%w: decoding verify response: %v", ErrInvalidCredential, err)
	}
	if !verifyResp.Valid {
		return nil, fmt.Errorf("%w: api key rejected", ErrInvalidCredential)
	}

	return &Identity{
		Subject:    verifyResp.User.ID,
		Email:      verifyResp.User.Email,
		TenantID:   verifyResp.User.TenantID,
		Name:       verifyResp.User.Name,
		Credential: key,
		Kind:       CredentialAPIKey,
	}, nil
}
