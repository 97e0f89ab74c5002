package domain

import "time"

// Timeline actions recorded against tasks.
const (
	ActionTaskCreated = "task_created"
	ActionTaskMoved   = "task_moved"
	ActionTaskDeleted = "task_deleted"
)

// TimelineEntry is an immutable audit record describing a change to a task.
// Entries are only ever appended, never updated or removed.
type TimelineEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
