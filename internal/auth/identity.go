// ABOUTME: Authenticated identity type and context plumbing for request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating identity via context

package auth

import (
	"context"
	"errors"
)

// Authentication errors. ErrUnauthenticated covers missing or malformed
// credentials; ErrInvalidCredential covers credentials that were presented
// correctly but failed verification (bad signature, expired, revoked key).
var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInvalidCredential = errors.New("invalid credential")
)

// CredentialKind identifies which trust source produced an identity.
type CredentialKind string

const (
	CredentialJWT         CredentialKind = "jwt"
	CredentialAPIKey      CredentialKind = "api_key"
	CredentialDevOverride CredentialKind = "dev_override"
)

// Identity holds the resolved identity for a single inbound request.
// It lives for exactly one request and is never persisted or cached.
type Identity struct {
	Subject    string         // stable subject id from the identity provider
	Email      string         // primary email, may be empty for API keys
	TenantID   string         // optional tenant scoping
	Name       string         // display name
	Credential string         // the original bearer token as presented
	Kind       CredentialKind // which validation path produced this identity
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}

// MustFromContext retrieves the Identity from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
