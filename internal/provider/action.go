// ABOUTME: Tagged-union action type proposed by LLM providers and its structural validation
// ABOUTME: The actor dispatches on ActionType exhaustively, keeping the loop total

package provider

import (
	"encoding/json"
	"fmt"
)

// ActionType discriminates the kinds of action an agent can take.
type ActionType string

const (
	ActionToolCall      ActionType = "tool_call"
	ActionCreateSubtask ActionType = "create_subtask"
	ActionReasoning     ActionType = "reasoning"
	ActionComplete      ActionType = "complete"
)

// Action is one proposed step. Exactly the fields for its Type are set;
// Validate enforces that before the actor executes anything.
type Action struct {
	Type ActionType `json:"type"`

	// tool_call
	ToolName string          `json:"tool_name,omitempty"`
	ToolArgs json.RawMessage `json:"tool_args,omitempty"`

	// create_subtask
	SubtaskTitle       string `json:"subtask_title,omitempty"`
	SubtaskDescription string `json:"subtask_description,omitempty"`

	// reasoning
	Thought string `json:"thought,omitempty"`

	// complete
	Summary           string   `json:"summary,omitempty"`
	ModifiedResources []string `json:"modified_resources,omitempty"`
}

// ToolChecker reports whether a tool name is known to the runtime.
type ToolChecker func(name string) bool

// Validate performs the structural and safety check on a proposed action
// before execution. A validation failure is recorded but not charged as a
// retryable failure.
func (a Action) Validate(knownTool ToolChecker) error {
	switch a.Type {
	case ActionToolCall:
		if a.ToolName == "" {
			return fmt.Errorf("tool_call action missing tool name")
		}
		if knownTool != nil && !knownTool(a.ToolName) {
			return fmt.Errorf("unknown tool %q", a.ToolName)
		}
		if len(a.ToolArgs) > 0 && !json.Valid(a.ToolArgs) {
			return fmt.Errorf("tool %q arguments are not valid JSON", a.ToolName)
		}
		return nil
	case ActionCreateSubtask:
		if a.SubtaskTitle == "" {
			return fmt.Errorf("create_subtask action missing title")
		}
		return nil
	case ActionReasoning:
		if a.Thought == "" {
			return fmt.Errorf("reasoning action missing thought")
		}
		return nil
	case ActionComplete:
		return nil
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// Signature returns a stable identity for loop detection: tool name plus
// canonical arguments. Non-tool actions have no signature.
func (a Action) Signature() string {
	if a.Type != ActionToolCall {
		return ""
	}
	return a.ToolName + string(a.ToolArgs)
}
