// ABOUTME: Provider-agnostic client contract turning task context into a next action
// ABOUTME: Implementations wrap external LLM/agent provider APIs

package provider

import (
	"context"
)

// Step is a compact view of one past action, sent to the provider as
// history so it can decide the next step.
type Step struct {
	Type   ActionType `json:"type"`
	Tool   string     `json:"tool,omitempty"`
	Status string     `json:"status"`
}

// Request carries everything a provider needs to propose the next action.
type Request struct {
	TaskID  string   `json:"task_id"`
	Goal    string   `json:"goal"`
	Context []string `json:"context"`
	History []Step   `json:"history"`
}

// Decision is the provider's proposed next action plus the usage it cost.
type Decision struct {
	Action     Action  `json:"action"`
	TokensUsed int64   `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
}

// Client abstracts an external LLM/agent provider. Implementations must
// be safe for concurrent use by many actors; each call carries its own
// timeout via ctx.
type Client interface {
	// Name identifies the provider (e.g. "anthropic", "openai").
	Name() string
	// Next proposes the next action for the task given accumulated
	// context and action history.
	Next(ctx context.Context, req Request) (Decision, error)
}
