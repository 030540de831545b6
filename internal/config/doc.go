// Package config loads and validates hive-orchestrator configuration.
//
// Configuration is a single YAML file. Environment variables in the
// ${VAR_NAME} format are expanded before parsing, so secrets like the
// API key verification URL token can be injected at deploy time:
//
//	auth:
//	  issuer: https://sso.example.com
//	  audience: hive-orchestrator
//	  jwks_url: https://sso.example.com/.well-known/jwks.json
//	  api_key_verify_url: https://sso.example.com/api/keys/verify
//
// Duration fields are written as Go duration strings ("30s", "1h") and
// parsed into time.Duration values during Load. Unset optional fields
// receive defaults; Validate rejects configs missing required fields.
package config
