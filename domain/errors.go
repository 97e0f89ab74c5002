package domain

import "errors"

var (
	// ErrNotFound is returned when a task or column does not exist or was
	// deleted concurrently.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTarget is returned when a task is moved to a column that is
	// deleted or belongs to a different project or team.
	ErrInvalidTarget = errors.New("target column outside task scope")

	// ErrColumnNotEmpty is returned when a column that still holds live tasks
	// is deleted. Tasks must be moved or deleted first so none of them ends up
	// referencing a dead column.
	ErrColumnNotEmpty = errors.New("column still holds tasks")
)
