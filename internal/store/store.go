// ABOUTME: Store interface and data types for hive-orchestrator persistence
// ABOUTME: Defines Checkpoint, StoredEvent and the Store interface for database operations

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/2389/hive-orchestrator/internal/event"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Checkpoint is an immutable snapshot of an actor's full state, used
// exclusively for recovery after failure or explicit resume. Seq is the
// action count at snapshot time; snapshots are never mutated once saved.
type Checkpoint struct {
	ID        string
	TaskID    string
	Seq       int
	State     json.RawMessage // JSON-encoded actor state
	CreatedAt time.Time
}

// StoredEvent is a lifecycle event as persisted by the audit sink.
type StoredEvent struct {
	ID            string
	Type          string
	Source        string
	Subject       string
	CorrelationID string
	Time          time.Time
	Data          json.RawMessage
}

// Store defines the interface for actor state and audit persistence
type Store interface {
	// Agent state (latest snapshot per task, overwritten on every save)
	SaveAgentState(ctx context.Context, taskID, status string, state json.RawMessage) error
	GetAgentState(ctx context.Context, taskID string) (json.RawMessage, error)

	// Checkpoints (append-only recovery snapshots)
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error)
	LatestCheckpoint(ctx context.Context, taskID string) (*Checkpoint, error)

	// Audit events
	RecordEvent(ctx context.Context, ev event.Event) error
	ListEventsByTask(ctx context.Context, subject string, limit int) ([]*StoredEvent, error)

	// Close releases any resources held by the store
	Close() error
}
