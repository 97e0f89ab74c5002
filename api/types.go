package api

import (
	"context"
	"time"

	"board-api/cache"
	"board-api/domain"
	"board-api/storage"
)

// Storage abstracts the caching board store for handlers.
type Storage interface {
	FetchBoard(ctx context.Context, projectID, teamID string) (domain.Board, storage.Source, error)
	FetchCategories(ctx context.Context, projectID string) ([]domain.Category, storage.Source, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) (domain.Task, error)
	MoveTask(ctx context.Context, taskID, newColumnID string, newSortOrder int) (domain.Task, error)
	CreateColumn(ctx context.Context, c domain.Column) (domain.Column, error)
	UpdateColumn(ctx context.Context, c domain.Column) (domain.Column, error)
	DeleteColumn(ctx context.Context, columnID string) (domain.Column, error)
	CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	TaskTimeline(ctx context.Context, taskID string) ([]domain.TimelineEntry, error)
}

// Deduper prevents reprocessing of retried mutations.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when the mutation fails so
	// the caller may retry.
	Remove(ctx context.Context, scope, key string) error
}

// HealthReporter exposes the cache monitor's latest snapshot.
type HealthReporter interface {
	Status() (cache.Health, time.Time)
}

// envelope is the uniform response shape of every board endpoint.
type envelope struct {
	Data    any    `json:"data,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Source  string `json:"source,omitempty"`
}
