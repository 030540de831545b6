// ABOUTME: HTTP implementation of the provider Client contract
// ABOUTME: Posts task context to a provider service and decodes the proposed action

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPClient calls a provider service over HTTP. The per-call timeout is
// the caller's responsibility via ctx, so one slow provider call never
// stalls another task's actor.
type HTTPClient struct {
	name    string
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a provider client for the service at baseURL.
func NewHTTPClient(name, baseURL, token string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{name: name, baseURL: baseURL, token: token, client: client}
}

// Name identifies the provider.
func (c *HTTPClient) Name() string {
	return c.name
}

// Next requests the next action from the provider service.
func (c *HTTPClient) Next(ctx context.Context, req Request) (Decision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Decision{}, fmt.Errorf("encoding provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/next-action", bytes.NewReader(body))
	if err != nil {
		return Decision{}, fmt.Errorf("building provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Decision{}, fmt.Errorf("provider call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return Decision{}, fmt.Errorf("decoding provider response: %w", err)
	}
	return decision, nil
}
