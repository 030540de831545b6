// Package auth validates bearer credentials for hive-orchestrator.
//
// # Authentication Methods
//
// Every inbound command carries an Authorization: Bearer <token> header.
// Three trust sources are accepted, none of which require a shared
// secret with the orchestrator:
//
//   - JWTs: browser session and device-flow tokens issued by the SSO
//     provider, verified against its published JWKS. Signature, issuer,
//     audience, and expiry are all enforced.
//
//   - API keys: static keys with the reserved "hive_ak_" prefix,
//     verified by a remote call to the identity provider.
//
//   - Dev override: a synthetic identity from the X-Hive-Dev-Identity
//     header. Disabled by default, gated by explicit configuration, and
//     logged at WARN on every use.
//
// # JWKS Cache
//
// Signing keys are cached with a bounded TTL (1 hour by default) and
// re-fetched when a token references an unknown key id. The cache is an
// explicit dependency injected into the Gateway so tests can point it at
// their own endpoint.
//
// # Identity Lifetime
//
// The resolved Identity is attached to the request context by Middleware
// and lives for exactly one request. It is never cached, persisted, or
// reused across calls.
package auth
