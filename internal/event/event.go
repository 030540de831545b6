// ABOUTME: Lifecycle event types and payload shapes published by agent actors
// ABOUTME: Events are append-only records consumed by audit and notification collaborators

package event

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the lifecycle event types.
type Type string

const (
	TypeTaskAssigned    Type = "task.assigned"
	TypeAgentSpawned    Type = "agent.spawned"
	TypeAgentStarted    Type = "agent.started"
	TypeAgentProgress   Type = "agent.progress"
	TypeSubtaskCreated  Type = "agent.subtask.created"
	TypeToolCalled      Type = "agent.tool.called"
	TypeAgentCompleted  Type = "agent.completed"
	TypeAgentFailed     Type = "agent.failed"
	TypeAgentPaused     Type = "agent.paused"
	TypeReviewRequested Type = "review.requested"
	TypeReviewCompleted Type = "review.completed"
)

// Event is one immutable lifecycle record. Events are published, never
// stored by the actor itself; persistence is the audit sink's concern.
type Event struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	Source        string    `json:"source"`  // emitting actor, e.g. "agent:42"
	Subject       string    `json:"subject"` // task reference
	Time          time.Time `json:"time"`
	CorrelationID string    `json:"correlation_id"`
	Data          any       `json:"data"`
}

// New builds an event with a generated id and the current time.
func New(t Type, source, subject, correlationID string, data any) Event {
	return Event{
		ID:            uuid.New().String(),
		Type:          t,
		Source:        source,
		Subject:       subject,
		Time:          time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          data,
	}
}

// StartedData is the payload for agent.started.
type StartedData struct {
	TaskID   string `json:"task_id"`
	AgentID  string `json:"agent_id"`
	Provider string `json:"provider"`
	Mode     string `json:"mode"`
}

// ProgressData is the payload for agent.progress.
type ProgressData struct {
	TaskID  string  `json:"task_id"`
	AgentID string  `json:"agent_id"`
	Actions int     `json:"actions"`
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// ToolCalledData is the payload for agent.tool.called.
type ToolCalledData struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Tool    string `json:"tool"`
	Status  string `json:"status"` // "ok" or "error"
}

// SubtaskCreatedData is the payload for agent.subtask.created.
type SubtaskCreatedData struct {
	TaskID    string `json:"task_id"`
	AgentID   string `json:"agent_id"`
	SubtaskID string `json:"subtask_id"`
	Title     string `json:"title"`
}

// CompletedData is the payload for agent.completed.
type CompletedData struct {
	TaskID            string   `json:"task_id"`
	AgentID           string   `json:"agent_id"`
	Tokens            int64    `json:"tokens"`
	CostUSD           float64  `json:"cost_usd"`
	DurationSeconds   float64  `json:"duration_seconds"`
	ActionsTaken      int      `json:"actions_taken"`
	ModifiedResources []string `json:"modified_resources"`
}

// FailedData is the payload for agent.failed. Recoverable failures carry
// the latest checkpoint id so collaborators can resume from it.
type FailedData struct {
	TaskID       string `json:"task_id"`
	AgentID      string `json:"agent_id"`
	ErrorType    string `json:"error_type"`
	Message      string `json:"message"`
	Recoverable  bool   `json:"recoverable"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// PausedData is the payload for agent.paused.
type PausedData struct {
	TaskID       string `json:"task_id"`
	AgentID      string `json:"agent_id"`
	Reason       string `json:"reason"` // limit_exceeded | error | user_request
	CheckpointID string `json:"checkpoint_id"`
}

// ErrorTypeUserStopped is the error_type carried by agent.failed when an
// actor is stopped by explicit command.
const ErrorTypeUserStopped = "USER_STOPPED"
