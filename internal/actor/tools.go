// ABOUTME: Tool execution contract used by actors plus an HTTP-backed runner
// ABOUTME: Tools live in an external runtime; the actor only dispatches and records outcomes

package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ToolResult is the outcome of one tool invocation. IsError covers tool-
// level failures (bad input, tool crashed) which the agent can observe and
// route around; transport failures surface as Go errors instead.
type ToolResult struct {
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}

// ToolRunner executes named tools on behalf of an actor. Implementations
// must be safe for concurrent use by many actors.
type ToolRunner interface {
	// Known reports whether the runner can execute the named tool.
	Known(name string) bool
	// Invoke runs the tool with the given JSON arguments. The ctx carries
	// the per-call timeout.
	Invoke(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// HTTPToolRunner dispatches tool calls to a tool runtime service.
type HTTPToolRunner struct {
	baseURL string
	token   string
	client  *http.Client
	tools   map[string]struct{}
}

// NewHTTPToolRunner creates a runner for the runtime at baseURL exposing
// the given tool names.
func NewHTTPToolRunner(baseURL, token string, tools []string, client *http.Client) *HTTPToolRunner {
	if client == nil {
		client = &http.Client{}
	}
	set := make(map[string]struct{}, len(tools))
	for _, name := range tools {
		set[name] = struct{}{}
	}
	return &HTTPToolRunner{baseURL: baseURL, token: token, client: client, tools: set}
}

// Known reports whether the runtime exposes the named tool.
func (r *HTTPToolRunner) Known(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Invoke posts the call to the tool runtime and decodes the result.
func (r *HTTPToolRunner) Invoke(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	if !r.Known(name) {
		return ToolResult{}, fmt.Errorf("unknown tool %q", name)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/tools/"+name, bytes.NewReader(args))
	if err != nil {
		return ToolResult{}, fmt.Errorf("building tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return ToolResult{}, fmt.Errorf("calling tool %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ToolResult{}, fmt.Errorf("tool %q returned status %d", name, resp.StatusCode)
	}

	var result ToolResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ToolResult{}, fmt.Errorf("decoding tool %q result: %w", name, err)
	}
	return result, nil
}
