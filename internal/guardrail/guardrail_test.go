// ABOUTME: Tests for guardrail evaluation and the TOML policy source
// ABOUTME: Covers every violation kind, owner overrides, and concurrent evaluation

package guardrail

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPolicy = `
[defaults]
max_tokens = 1000
max_cost_usd = 5.0
max_actions = 50
max_duration = "1h"
loop_threshold = 3

[owners."user-capped"]
max_tokens = 100

[owners."user-roomy"]
max_tokens = 1000000
max_actions = 10000
`

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	policy, err := ParsePolicy(testPolicy)
	require.NoError(t, err)
	return NewEvaluator(policy)
}

func TestEvaluate_Allowed(t *testing.T) {
	e := newTestEvaluator(t)

	result, err := e.Evaluate("user-1", Usage{
		Tokens:  500,
		CostUSD: 1.0,
		Actions: 10,
		Elapsed: time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Empty(t, result.Violations)
}

func TestEvaluate_Violations(t *testing.T) {
	e := newTestEvaluator(t)

	tests := []struct {
		name  string
		usage Usage
		want  ViolationKind
	}{
		{"token budget", Usage{Tokens: 1000}, ViolationTokenBudget},
		{"cost budget", Usage{CostUSD: 5.0}, ViolationCostBudget},
		{"action count", Usage{Actions: 50}, ViolationActionCount},
		{"duration", Usage{Elapsed: time.Hour}, ViolationDuration},
		{"loop", Usage{RecentCalls: []string{"search{}", "fetch{url}", "fetch{url}", "fetch{url}"}}, ViolationLoop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Evaluate("user-1", tt.usage)
			require.NoError(t, err)
			assert.False(t, result.Allowed)
			assert.Contains(t, result.Violations, tt.want)
		})
	}
}

func TestEvaluate_MultipleViolations(t *testing.T) {
	e := newTestEvaluator(t)

	result, err := e.Evaluate("user-1", Usage{Tokens: 5000, CostUSD: 20.0})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Len(t, result.Violations, 2)
}

func TestEvaluate_OwnerOverride(t *testing.T) {
	e := newTestEvaluator(t)

	// 500 tokens is fine for the default budget but over user-capped's.
	usage := Usage{Tokens: 500}

	result, err := e.Evaluate("user-capped", usage)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = e.Evaluate("user-1", usage)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestEvaluate_OverrideInheritsDefaults(t *testing.T) {
	e := newTestEvaluator(t)

	// user-capped only overrides max_tokens; cost budget comes from defaults.
	result, err := e.Evaluate("user-capped", Usage{CostUSD: 5.0})
	require.NoError(t, err)
	assert.Contains(t, result.Violations, ViolationCostBudget)
}

func TestEvaluate_LoopBrokenByDifferentCall(t *testing.T) {
	e := newTestEvaluator(t)

	result, err := e.Evaluate("user-1", Usage{
		RecentCalls: []string{"fetch{url}", "fetch{url}", "search{}", "fetch{url}"},
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestEvaluate_ConcurrentUse(t *testing.T) {
	e := newTestEvaluator(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				result, err := e.Evaluate("user-roomy", Usage{Tokens: int64(j)})
				assert.NoError(t, err)
				assert.True(t, result.Allowed)
			}
		}()
	}
	wg.Wait()
}

func TestLoadPolicy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicy), 0644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)

	limits, err := policy.Limits("user-capped")
	require.NoError(t, err)
	assert.Equal(t, int64(100), limits.MaxTokens)
	assert.Equal(t, time.Hour, limits.MaxDuration)
}

func TestParsePolicy_BadDuration(t *testing.T) {
	_, err := ParsePolicy(`
[defaults]
max_duration = "two hours"
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_duration")
}
