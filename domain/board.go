package domain

// Board is the computed view of one (project, team) scope: its columns in
// display order and the live tasks attached to them. It is never persisted as
// its own row; the relational store materializes it from columns and tasks.
type Board struct {
	ProjectID string   `json:"projectId"`
	TeamID    string   `json:"teamId,omitempty"`
	Columns   []Column `json:"columns"`
	Tasks     []Task   `json:"tasks"`
}
