package domain

import "time"

// Column is a workflow lane on a board. An empty TeamID means the column is
// visible to every team in the project.
type Column struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	TeamID    string    `json:"teamId,omitempty"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
