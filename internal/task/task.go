// ABOUTME: Task entity as seen by the orchestrator and the task-management collaborator contract
// ABOUTME: Tasks are owned by the external task system; the actor only reads them

package task

import (
	"context"
)

// Mode is a task's execution mode.
type Mode string

const (
	ModeAutonomous Mode = "autonomous"
	ModeSupervised Mode = "supervised"
	ModeReviewOnly Mode = "review_only"
)

// Task is the read-only slice of the task-management system's task that
// the orchestrator needs. The full data model lives with the collaborator.
type Task struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	AssigneeID  string `json:"assignee_id"`
	Mode        Mode   `json:"mode"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Service is the task-management collaborator surface the actor uses to
// create subtasks during execution.
type Service interface {
	CreateSubtask(ctx context.Context, parent Task, title, description string) (subtaskID string, err error)
}
