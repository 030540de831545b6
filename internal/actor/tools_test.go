// ABOUTME: Tests for the HTTP tool runner dispatch and error handling

package actor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPToolRunner_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tools/search", r.URL.Path)
		assert.Equal(t, "Bearer tool-token", r.Header.Get("Authorization"))

		var args map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		assert.Equal(t, "golang", args["q"])

		_ = json.NewEncoder(w).Encode(ToolResult{Output: "3 results"})
	}))
	t.Cleanup(srv.Close)

	runner := NewHTTPToolRunner(srv.URL, "tool-token", []string{"search"}, nil)
	require.True(t, runner.Known("search"))
	assert.False(t, runner.Known("launch_missiles"))

	res, err := runner.Invoke(context.Background(), "search", json.RawMessage(`{"q":"golang"}`))
	require.NoError(t, err)
	assert.Equal(t, "3 results", res.Output)
	assert.False(t, res.IsError)
}

func TestHTTPToolRunner_UnknownTool(t *testing.T) {
	runner := NewHTTPToolRunner("http://localhost:0", "", []string{"search"}, nil)
	_, err := runner.Invoke(context.Background(), "fetch", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestHTTPToolRunner_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	runner := NewHTTPToolRunner(srv.URL, "", []string{"search"}, nil)
	_, err := runner.Invoke(context.Background(), "search", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
