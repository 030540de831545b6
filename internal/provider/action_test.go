// ABOUTME: Tests for action validation and loop-detection signatures
// ABOUTME: Covers every action variant and the HTTP provider client

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knownTools(names ...string) ToolChecker {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}

func TestActionValidate(t *testing.T) {
	check := knownTools("search", "fetch")

	tests := []struct {
		name    string
		action  Action
		wantErr string
	}{
		{"valid tool call", Action{Type: ActionToolCall, ToolName: "search", ToolArgs: json.RawMessage(`{"q":"go"}`)}, ""},
		{"tool call no args", Action{Type: ActionToolCall, ToolName: "search"}, ""},
		{"missing tool name", Action{Type: ActionToolCall}, "missing tool name"},
		{"unknown tool", Action{Type: ActionToolCall, ToolName: "rm_rf"}, "unknown tool"},
		{"malformed args", Action{Type: ActionToolCall, ToolName: "fetch", ToolArgs: json.RawMessage(`{"url":`)}, "not valid JSON"},
		{"valid subtask", Action{Type: ActionCreateSubtask, SubtaskTitle: "split work"}, ""},
		{"subtask missing title", Action{Type: ActionCreateSubtask}, "missing title"},
		{"valid reasoning", Action{Type: ActionReasoning, Thought: "consider options"}, ""},
		{"reasoning missing thought", Action{Type: ActionReasoning}, "missing thought"},
		{"valid completion", Action{Type: ActionComplete, Summary: "done"}, ""},
		{"unknown type", Action{Type: "self_destruct"}, "unknown action type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate(check)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestActionSignature(t *testing.T) {
	a := Action{Type: ActionToolCall, ToolName: "fetch", ToolArgs: json.RawMessage(`{"url":"x"}`)}
	b := Action{Type: ActionToolCall, ToolName: "fetch", ToolArgs: json.RawMessage(`{"url":"x"}`)}
	c := Action{Type: ActionToolCall, ToolName: "fetch", ToolArgs: json.RawMessage(`{"url":"y"}`)}

	assert.Equal(t, a.Signature(), b.Signature())
	assert.NotEqual(t, a.Signature(), c.Signature())
	assert.Empty(t, Action{Type: ActionReasoning, Thought: "hm"}.Signature())
}

func TestHTTPClient_Next(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/next-action", r.URL.Path)
		assert.Equal(t, "Bearer prov-token", r.Header.Get("Authorization"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "42", req.TaskID)

		_ = json.NewEncoder(w).Encode(Decision{
			Action:     Action{Type: ActionReasoning, Thought: "thinking"},
			TokensUsed: 120,
			CostUSD:    0.004,
		})
	}))
	t.Cleanup(srv.Close)

	client := NewHTTPClient("mock", srv.URL, "prov-token", nil)
	assert.Equal(t, "mock", client.Name())

	decision, err := client.Next(context.Background(), Request{TaskID: "42", Goal: "do things"})
	require.NoError(t, err)
	assert.Equal(t, ActionReasoning, decision.Action.Type)
	assert.Equal(t, int64(120), decision.TokensUsed)
}

func TestHTTPClient_NextErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	client := NewHTTPClient("mock", srv.URL, "", nil)
	_, err := client.Next(context.Background(), Request{TaskID: "42"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}
