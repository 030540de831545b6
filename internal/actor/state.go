// ABOUTME: Agent state machine types, transitions, and usage projection
// ABOUTME: AgentState is JSON-serializable so checkpoints capture the full actor state

package actor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/hive-orchestrator/internal/guardrail"
	"github.com/2389/hive-orchestrator/internal/provider"
	"github.com/2389/hive-orchestrator/internal/task"
)

// ErrAlreadyRunning indicates a start for a task that already has an actor.
var ErrAlreadyRunning = errors.New("agent already running for task")

// ErrUnknownTask indicates a command for a task that was never started.
var ErrUnknownTask = errors.New("unknown task")

// Status is the actor lifecycle status.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusStopped   Status = "STOPPED"
)

// Terminal reports whether no further transitions are accepted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// validTransitions encodes the state machine. Terminal states have no
// outgoing edges; a new actor instance is required to run again.
var validTransitions = map[Status][]Status{
	StatusIdle:    {StatusRunning},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed, StatusStopped},
	StatusPaused:  {StatusRunning, StatusStopped, StatusFailed},
}

// canTransition reports whether from→to is a legal edge.
func canTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PauseReason explains why an actor paused.
type PauseReason string

const (
	PauseLimitExceeded PauseReason = "limit_exceeded"
	PauseError         PauseReason = "error"
	PauseUserRequest   PauseReason = "user_request"
)

// ActionRecord is one step taken by the agent. Records are immutable
// once appended; the list inside AgentState is append-only.
type ActionRecord struct {
	Seq       int                 `json:"seq"`
	Type      provider.ActionType `json:"type"`
	Tool      string              `json:"tool,omitempty"`
	Signature string              `json:"signature,omitempty"`
	Status    string              `json:"status"` // "ok" or "error"
	Detail    string              `json:"detail,omitempty"`
	Tokens    int64               `json:"tokens"`
	CostUSD   float64             `json:"cost_usd"`
	Timestamp time.Time           `json:"timestamp"`
}

// AgentState is the actor's full mutable state. Exactly one live actor
// owns it at a time; it is persisted on every mutation-significant event
// and snapshotted into checkpoints.
type AgentState struct {
	Task              task.Task      `json:"task"`
	Status            Status         `json:"status"`
	Provider          string         `json:"provider"`
	Actions           []ActionRecord `json:"actions"`
	Tokens            int64          `json:"tokens"`
	CostUSD           float64        `json:"cost_usd"`
	CheckpointIDs     []string       `json:"checkpoint_ids,omitempty"`
	RetryCount        int            `json:"retry_count"`
	PauseReason       PauseReason    `json:"pause_reason,omitempty"`
	Result            string         `json:"result,omitempty"`
	LastError         string         `json:"last_error,omitempty"`
	Context           []string       `json:"context,omitempty"`
	ModifiedResources []string       `json:"modified_resources,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// transition moves the state machine, rejecting illegal edges.
func (s *AgentState) transition(to Status) error {
	if !canTransition(s.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s", s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// recentSignatureWindow bounds how much call history feeds loop detection.
const recentSignatureWindow = 16

// usage projects the state into the guardrail evaluator's input.
func (s *AgentState) usage(now time.Time) guardrail.Usage {
	var recent []string
	start := len(s.Actions) - recentSignatureWindow
	if start < 0 {
		start = 0
	}
	for _, rec := range s.Actions[start:] {
		if rec.Signature != "" {
			recent = append(recent, rec.Signature)
		}
	}

	var elapsed time.Duration
	if !s.StartedAt.IsZero() {
		elapsed = now.Sub(s.StartedAt)
	}

	return guardrail.Usage{
		Tokens:      s.Tokens,
		CostUSD:     s.CostUSD,
		Actions:     len(s.Actions),
		Elapsed:     elapsed,
		RecentCalls: recent,
	}
}

// lastCheckpointID returns the most recent checkpoint id, or "".
func (s *AgentState) lastCheckpointID() string {
	if len(s.CheckpointIDs) == 0 {
		return ""
	}
	return s.CheckpointIDs[len(s.CheckpointIDs)-1]
}

// encode serializes the state for persistence and checkpointing.
func (s *AgentState) encode() (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding agent state: %w", err)
	}
	return data, nil
}

// decodeState reconstructs an AgentState from its persisted form.
func decodeState(data json.RawMessage) (*AgentState, error) {
	var st AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding agent state: %w", err)
	}
	return &st, nil
}

// Summary is the read-only projection served by status queries.
type Summary struct {
	TaskID         string        `json:"task_id"`
	Status         Status        `json:"status"`
	Actions        int           `json:"actions"`
	Tokens         int64         `json:"tokens"`
	CostUSD        float64       `json:"cost_usd"`
	RetryCount     int           `json:"retry_count"`
	PauseReason    PauseReason   `json:"pause_reason,omitempty"`
	Result         string        `json:"result,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	LastAction     *ActionRecord `json:"last_action,omitempty"`
	LastCheckpoint string        `json:"last_checkpoint,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// summarize builds the status projection from a state snapshot.
func summarize(s *AgentState) Summary {
	sum := Summary{
		TaskID:         s.Task.ID,
		Status:         s.Status,
		Actions:        len(s.Actions),
		Tokens:         s.Tokens,
		CostUSD:        s.CostUSD,
		RetryCount:     s.RetryCount,
		PauseReason:    s.PauseReason,
		Result:         s.Result,
		LastError:      s.LastError,
		LastCheckpoint: s.lastCheckpointID(),
		UpdatedAt:      s.UpdatedAt,
	}
	if len(s.Actions) > 0 {
		last := s.Actions[len(s.Actions)-1]
		sum.LastAction = &last
	}
	return sum
}
