// ABOUTME: Unauthenticated OAuth authorization-server discovery document
// ABOUTME: Lets clients locate the identity collaborator's endpoints without credentials

package orchestrator

import (
	"net/http"
	"strings"
)

// discoveryDocument follows RFC 8414 authorization server metadata.
type discoveryDocument struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	DeviceAuthorizationEndpoint   string   `json:"device_authorization_endpoint"`
	JWKSURI                       string   `json:"jwks_uri"`
	ScopesSupported               []string `json:"scopes_supported"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	GrantTypesSupported           []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
}

func buildDiscovery(issuer, jwksURL string) discoveryDocument {
	base := strings.TrimRight(issuer, "/")
	if jwksURL == "" {
		jwksURL = base + "/.well-known/jwks.json"
	}
	return discoveryDocument{
		Issuer:                      base,
		AuthorizationEndpoint:       base + "/oauth/authorize",
		TokenEndpoint:               base + "/oauth/token",
		DeviceAuthorizationEndpoint: base + "/oauth/device",
		JWKSURI:                     jwksURL,
		ScopesSupported:             []string{"tasks:read", "tasks:write"},
		ResponseTypesSupported:      []string{"code"},
		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
			"urn:ietf:params:oauth:grant-type:device_code",
		},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.discovery)
}
