package domain

import "time"

// Task scopes. Personal tasks are visible to their creator only; shared tasks
// belong to the whole board.
const (
	ScopePersonal = "personal"
	ScopeShared   = "shared"
)

// Task represents a single board item.
type Task struct {
	ID        string     `json:"id"`
	ColumnID  string     `json:"columnId"`
	ProjectID string     `json:"projectId"`
	TeamID    string     `json:"teamId,omitempty"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Creator   string     `json:"creator"`
	Assignee  string     `json:"assignee,omitempty"`
	Priority  int        `json:"priority,omitempty"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	SortOrder int        `json:"sortOrder"`
	Scope     string     `json:"scope,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
