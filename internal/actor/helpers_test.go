// ABOUTME: Shared fakes for actor tests: scripted provider, tool runner, task service
// ABOUTME: Tests run against a real SQLite store in a temp dir

package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/hive-orchestrator/internal/event"
	"github.com/2389/hive-orchestrator/internal/guardrail"
	"github.com/2389/hive-orchestrator/internal/provider"
	"github.com/2389/hive-orchestrator/internal/store"
	"github.com/2389/hive-orchestrator/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTask() task.Task {
	return task.Task{
		ID:          "42",
		OwnerID:     "owner-1",
		AssigneeID:  "agent-bee",
		Mode:        task.ModeAutonomous,
		Title:       "index the docs",
		Description: "crawl and index the documentation set",
	}
}

// fakeProvider scripts decisions by call number (1-based).
type fakeProvider struct {
	next func(call int, req provider.Request) (provider.Decision, error)

	mu    sync.Mutex
	calls int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Next(_ context.Context, req provider.Request) (provider.Decision, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	return p.next(n, req)
}

func reasoningDecision() provider.Decision {
	return provider.Decision{
		Action:     provider.Action{Type: provider.ActionReasoning, Thought: "thinking"},
		TokensUsed: 100,
		CostUSD:    0.01,
	}
}

func completeDecision(summary string) provider.Decision {
	return provider.Decision{
		Action:     provider.Action{Type: provider.ActionComplete, Summary: summary, ModifiedResources: []string{"doc/index"}},
		TokensUsed: 50,
		CostUSD:    0.005,
	}
}

// fakeTools knows a fixed tool set and returns a canned result.
type fakeTools struct {
	result ToolResult
	err    error
}

func (f *fakeTools) Known(name string) bool {
	return name == "search" || name == "fetch"
}

func (f *fakeTools) Invoke(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return f.result, f.err
}

// fakeTasks records subtask creations.
type fakeTasks struct {
	mu      sync.Mutex
	created []string
	err     error
}

func (f *fakeTasks) CreateSubtask(_ context.Context, _ task.Task, title, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.created = append(f.created, title)
	n := len(f.created)
	f.mu.Unlock()
	return fmt.Sprintf("sub-%d", n), nil
}

// staticPolicy serves one set of limits for every owner.
type staticPolicy struct {
	limits guardrail.Limits
}

func (p staticPolicy) Limits(string) (guardrail.Limits, error) {
	return p.limits, nil
}

// fastConfig keeps loop timing tight for tests.
func fastConfig() Config {
	return Config{
		CheckpointEvery:  10,
		RetryCeiling:     3,
		ProgressInterval: 20 * time.Millisecond,
		ProviderTimeout:  time.Second,
		ToolTimeout:      time.Second,
		BackoffBase:      time.Millisecond,
	}
}

// newTestDeps wires a full dependency set around the given provider.
func newTestDeps(t *testing.T, p provider.Client, limits guardrail.Limits) (Deps, *event.Bus) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "actor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := event.NewBus(testLogger())
	return Deps{
		Provider: p,
		Tools:    &fakeTools{result: ToolResult{Output: "ok"}},
		Tasks:    &fakeTasks{},
		Guard:    guardrail.NewEvaluator(staticPolicy{limits: limits}),
		Store:    st,
		Bus:      bus,
		Logger:   testLogger(),
	}, bus
}

func waitDone(t *testing.T, a *Actor) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("actor did not exit in time")
	}
}

// drainEvents collects n events from ch or fails the test.
func drainEvents(t *testing.T, ch <-chan event.Event, n int) []event.Event {
	t.Helper()
	var out []event.Event
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("got %d events, want %d", len(out), n)
		}
	}
	return out
}
