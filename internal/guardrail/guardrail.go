// ABOUTME: Stateless guardrail evaluation of cumulative agent usage against policy limits
// ABOUTME: Detects token/cost/action/duration overruns and repeated tool-call loops

package guardrail

import (
	"fmt"
	"time"
)

// ViolationKind identifies which limit a running agent has exceeded.
type ViolationKind string

const (
	ViolationTokenBudget ViolationKind = "token_budget_exceeded"
	ViolationCostBudget  ViolationKind = "cost_budget_exceeded"
	ViolationActionCount ViolationKind = "action_count_exceeded"
	ViolationDuration    ViolationKind = "duration_exceeded"
	ViolationLoop        ViolationKind = "loop_detected"
)

// Usage is a snapshot of an agent's cumulative consumption. RecentCalls
// holds tool-call signatures (name plus canonical arguments) in execution
// order, most recent last; only the tail matters for loop detection.
type Usage struct {
	Tokens      int64
	CostUSD     float64
	Actions     int
	Elapsed     time.Duration
	RecentCalls []string
}

// Limits are the per-owner policy budgets. A zero value means unlimited
// for that dimension.
type Limits struct {
	MaxTokens     int64
	MaxCostUSD    float64
	MaxActions    int
	MaxDuration   time.Duration
	LoopThreshold int
}

// Result is the outcome of a guardrail evaluation.
type Result struct {
	Allowed    bool
	Violations []ViolationKind
}

// PolicySource looks up the budget limits for a task owner.
// Implementations must be safe for concurrent use by many actors.
type PolicySource interface {
	Limits(owner string) (Limits, error)
}

// Evaluator checks cumulative usage against owner-level limits.
// It holds no mutable state and is safe to share across actors.
type Evaluator struct {
	policies PolicySource
}

// NewEvaluator creates an Evaluator backed by the given policy source.
func NewEvaluator(policies PolicySource) *Evaluator {
	return &Evaluator{policies: policies}
}

// Evaluate returns all limit violations for the given usage. An empty
// violation list means the agent may take its next action.
func (e *Evaluator) Evaluate(owner string, usage Usage) (Result, error) {
	limits, err := e.policies.Limits(owner)
	if err != nil {
		return Result{}, fmt.Errorf("looking up limits for %q: %w", owner, err)
	}

	var violations []ViolationKind
	if limits.MaxTokens > 0 && usage.Tokens >= limits.MaxTokens {
		violations = append(violations, ViolationTokenBudget)
	}
	if limits.MaxCostUSD > 0 && usage.CostUSD >= limits.MaxCostUSD {
		violations = append(violations, ViolationCostBudget)
	}
	if limits.MaxActions > 0 && usage.Actions >= limits.MaxActions {
		violations = append(violations, ViolationActionCount)
	}
	if limits.MaxDuration > 0 && usage.Elapsed >= limits.MaxDuration {
		violations = append(violations, ViolationDuration)
	}
	if limits.LoopThreshold > 0 && trailingRepeats(usage.RecentCalls) >= limits.LoopThreshold {
		violations = append(violations, ViolationLoop)
	}

	return Result{
		Allowed:    len(violations) == 0,
		Violations: violations,
	}, nil
}

// trailingRepeats counts how many times the last call signature repeats
// consecutively at the end of the call history.
func trailingRepeats(calls []string) int {
	if len(calls) == 0 {
		return 0
	}
	last := calls[len(calls)-1]
	count := 0
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i] != last {
			break
		}
		count++
	}
	return count
}
