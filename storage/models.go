package storage

import (
	"time"

	"github.com/uptrace/bun"

	"board-api/domain"
)

type columnRecord struct {
	bun.BaseModel `bun:"table:columns,alias:c"`

	ID        string    `bun:"id,pk"`
	ProjectID string    `bun:"project_id,notnull"`
	TeamID    string    `bun:"team_id"`
	Name      string    `bun:"name,notnull"`
	Color     string    `bun:"color"`
	SortOrder int       `bun:"sort_order,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

type taskRecord struct {
	bun.BaseModel `bun:"table:tasks,alias:t"`

	ID        string     `bun:"id,pk"`
	ColumnID  string     `bun:"column_id,notnull"`
	ProjectID string     `bun:"project_id,notnull"`
	TeamID    string     `bun:"team_id"`
	Title     string     `bun:"title,notnull"`
	Notes     string     `bun:"notes"`
	Creator   string     `bun:"creator,notnull"`
	Assignee  string     `bun:"assignee"`
	Priority  int        `bun:"priority"`
	DueDate   *time.Time `bun:"due_date"`
	SortOrder int        `bun:"sort_order,notnull"`
	Scope     string     `bun:"scope,notnull"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
	UpdatedAt time.Time  `bun:"updated_at,notnull"`
	DeletedAt time.Time  `bun:"deleted_at,soft_delete,nullzero"`
}

type categoryRecord struct {
	bun.BaseModel `bun:"table:categories,alias:cat"`

	ID        string `bun:"id,pk"`
	ProjectID string `bun:"project_id,notnull"`
	Name      string `bun:"name,notnull"`
	Color     string `bun:"color"`
}

type timelineRecord struct {
	bun.BaseModel `bun:"table:timeline_entries,alias:tl"`

	ID        string    `bun:"id,pk"`
	TaskID    string    `bun:"task_id,notnull"`
	Action    string    `bun:"action,notnull"`
	Detail    string    `bun:"detail"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (r columnRecord) toDomain() domain.Column {
	return domain.Column{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		TeamID:    r.TeamID,
		Name:      r.Name,
		Color:     r.Color,
		SortOrder: r.SortOrder,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func columnFromDomain(c domain.Column) columnRecord {
	return columnRecord{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		TeamID:    c.TeamID,
		Name:      c.Name,
		Color:     c.Color,
		SortOrder: c.SortOrder,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (r taskRecord) toDomain() domain.Task {
	return domain.Task{
		ID:        r.ID,
		ColumnID:  r.ColumnID,
		ProjectID: r.ProjectID,
		TeamID:    r.TeamID,
		Title:     r.Title,
		Notes:     r.Notes,
		Creator:   r.Creator,
		Assignee:  r.Assignee,
		Priority:  r.Priority,
		DueDate:   r.DueDate,
		SortOrder: r.SortOrder,
		Scope:     r.Scope,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func taskFromDomain(t domain.Task) taskRecord {
	return taskRecord{
		ID:        t.ID,
		ColumnID:  t.ColumnID,
		ProjectID: t.ProjectID,
		TeamID:    t.TeamID,
		Title:     t.Title,
		Notes:     t.Notes,
		Creator:   t.Creator,
		Assignee:  t.Assignee,
		Priority:  t.Priority,
		DueDate:   t.DueDate,
		SortOrder: t.SortOrder,
		Scope:     t.Scope,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (r categoryRecord) toDomain() domain.Category {
	return domain.Category{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Color: r.Color}
}

func (r timelineRecord) toDomain() domain.TimelineEntry {
	return domain.TimelineEntry{
		ID:        r.ID,
		TaskID:    r.TaskID,
		Action:    r.Action,
		Detail:    r.Detail,
		CreatedAt: r.CreatedAt,
	}
}
