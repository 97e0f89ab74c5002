// Package storage provides the relational board repository and the caching
// wrapper that sits in front of it. The repository is the sole source of
// truth; it trusts its caller to have performed authorization checks.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"

	"board-api/domain"
)

// Repository implements board persistence on a bun DB handle. All methods
// are safe for concurrent use; mutations rely on database transactions, not
// in-process locking.
type Repository struct {
	db *bun.DB
}

// OpenDB opens a sqlite-backed bun DB from the given DSN. In-memory DSNs are
// pinned to a single connection so every query sees the same database.
func OpenDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") {
		sqldb.SetMaxOpenConns(1)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// NewRepository wraps an open bun DB.
func NewRepository(db *bun.DB) *Repository {
	if db == nil {
		panic("storage.NewRepository: db is nil")
	}
	return &Repository{db: db}
}

// InitSchema creates the board tables when they do not exist yet.
func (r *Repository) InitSchema(ctx context.Context) error {
	models := []any{
		(*columnRecord)(nil),
		(*taskRecord)(nil),
		(*categoryRecord)(nil),
		(*timelineRecord)(nil),
	}
	for _, m := range models {
		if _, err := r.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// LoadBoard returns the full board for a (project, team) scope: live columns
// in display order plus the live tasks attached to them. Project-wide columns
// (empty team) are part of every team's board.
func (r *Repository) LoadBoard(ctx context.Context, projectID, teamID string) (domain.Board, error) {
	var cols []columnRecord
	q := r.db.NewSelect().Model(&cols).Where("c.project_id = ?", projectID)
	if teamID == "" {
		q = q.Where("c.team_id = ''")
	} else {
		q = q.Where("(c.team_id = ? OR c.team_id = '')", teamID)
	}
	if err := q.Order("sort_order ASC", "created_at ASC").Scan(ctx); err != nil {
		return domain.Board{}, err
	}

	var tasks []taskRecord
	tq := r.db.NewSelect().Model(&tasks).Where("t.project_id = ?", projectID)
	if teamID == "" {
		tq = tq.Where("t.team_id = ''")
	} else {
		tq = tq.Where("(t.team_id = ? OR t.team_id = '')", teamID)
	}
	if err := tq.Order("sort_order ASC", "created_at ASC").Scan(ctx); err != nil {
		return domain.Board{}, err
	}

	board := domain.Board{
		ProjectID: projectID,
		TeamID:    teamID,
		Columns:   make([]domain.Column, 0, len(cols)),
		Tasks:     make([]domain.Task, 0, len(tasks)),
	}
	for _, c := range cols {
		board.Columns = append(board.Columns, c.toDomain())
	}
	for _, t := range tasks {
		board.Tasks = append(board.Tasks, t.toDomain())
	}
	return board, nil
}

// ListCategories returns the project's categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context, projectID string) ([]domain.Category, error) {
	var recs []categoryRecord
	err := r.db.NewSelect().Model(&recs).
		Where("cat.project_id = ?", projectID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out, nil
}

// CreateTask inserts a new task and its task_created timeline entry. The
// target column must be live and in the task's scope.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Scope == "" {
		t.Scope = domain.ScopeShared
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	rec := taskFromDomain(t)
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		col, err := selectLiveColumn(ctx, tx, t.ColumnID)
		if err != nil {
			return err
		}
		if !columnInScope(col, t.ProjectID, t.TeamID) {
			return domain.ErrInvalidTarget
		}
		if _, err := tx.NewInsert().Model(&rec).Exec(ctx); err != nil {
			return err
		}
		return appendTimeline(ctx, tx, rec.ID, domain.ActionTaskCreated, map[string]any{
			"column": rec.ColumnID,
			"order":  rec.SortOrder,
		}, now)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return rec.toDomain(), nil
}

// UpdateTask updates the mutable fields of a task. Column changes go through
// MoveTask instead.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	var rec taskRecord
	if err := r.db.NewSelect().Model(&rec).Where("t.id = ?", t.ID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}

	rec.Title = t.Title
	rec.Notes = t.Notes
	rec.Assignee = t.Assignee
	rec.Priority = t.Priority
	rec.DueDate = t.DueDate
	if t.Scope != "" {
		rec.Scope = t.Scope
	}
	rec.SortOrder = t.SortOrder
	rec.UpdatedAt = time.Now().UTC()

	_, err := r.db.NewUpdate().Model(&rec).
		Column("title", "notes", "assignee", "priority", "due_date", "scope", "sort_order", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	return rec.toDomain(), nil
}

// DeleteTask soft-deletes a task and records the deletion on its timeline.
// The deleted task is returned so callers know which scope to invalidate.
func (r *Repository) DeleteTask(ctx context.Context, taskID string) (domain.Task, error) {
	var rec taskRecord
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model(&rec).Where("t.id = ?", taskID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		if _, err := tx.NewDelete().Model(&rec).WherePK().Exec(ctx); err != nil {
			return err
		}
		return appendTimeline(ctx, tx, rec.ID, domain.ActionTaskDeleted, nil, time.Now().UTC())
	})
	if err != nil {
		return domain.Task{}, err
	}
	return rec.toDomain(), nil
}

// MoveTask atomically moves a task to a new column and position and appends
// the task_moved timeline entry. Either every step commits or none do; a task
// is never observable half-moved. Concurrent moves of the same task serialize
// at the database row, last committed write wins.
func (r *Repository) MoveTask(ctx context.Context, taskID, newColumnID string, newSortOrder int) (domain.Task, error) {
	var rec taskRecord
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model(&rec).Where("t.id = ?", taskID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}

		col, err := selectLiveColumn(ctx, tx, newColumnID)
		if err != nil {
			return err
		}
		if !columnInScope(col, rec.ProjectID, rec.TeamID) {
			return domain.ErrInvalidTarget
		}

		fromColumn, fromOrder := rec.ColumnID, rec.SortOrder
		now := time.Now().UTC()
		rec.ColumnID = newColumnID
		rec.SortOrder = newSortOrder
		rec.UpdatedAt = now

		if _, err := tx.NewUpdate().Model(&rec).
			Column("column_id", "sort_order", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return err
		}

		return appendTimeline(ctx, tx, rec.ID, domain.ActionTaskMoved, map[string]any{
			"fromColumn": fromColumn,
			"toColumn":   newColumnID,
			"fromOrder":  fromOrder,
			"toOrder":    newSortOrder,
		}, now)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return rec.toDomain(), nil
}

// CreateColumn inserts a new workflow column.
func (r *Repository) CreateColumn(ctx context.Context, c domain.Column) (domain.Column, error) {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	rec := columnFromDomain(c)
	if _, err := r.db.NewInsert().Model(&rec).Exec(ctx); err != nil {
		return domain.Column{}, err
	}
	return rec.toDomain(), nil
}

// UpdateColumn updates a column's name, color and position.
func (r *Repository) UpdateColumn(ctx context.Context, c domain.Column) (domain.Column, error) {
	var rec columnRecord
	if err := r.db.NewSelect().Model(&rec).Where("c.id = ?", c.ID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Column{}, domain.ErrNotFound
		}
		return domain.Column{}, err
	}

	rec.Name = c.Name
	rec.Color = c.Color
	rec.SortOrder = c.SortOrder
	rec.UpdatedAt = time.Now().UTC()

	_, err := r.db.NewUpdate().Model(&rec).
		Column("name", "color", "sort_order", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Column{}, err
	}
	return rec.toDomain(), nil
}

// DeleteColumn soft-deletes a column. A column holding live tasks cannot be
// deleted; they have to be moved or deleted first, otherwise they would point
// at a column no board shows.
func (r *Repository) DeleteColumn(ctx context.Context, columnID string) (domain.Column, error) {
	var rec columnRecord
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model(&rec).Where("c.id = ?", columnID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		live, err := tx.NewSelect().Model((*taskRecord)(nil)).Where("t.column_id = ?", columnID).Count(ctx)
		if err != nil {
			return err
		}
		if live > 0 {
			return domain.ErrColumnNotEmpty
		}
		_, err = tx.NewDelete().Model(&rec).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return domain.Column{}, err
	}
	return rec.toDomain(), nil
}

// CreateCategory inserts project reference data.
func (r *Repository) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	rec := categoryRecord{ID: c.ID, ProjectID: c.ProjectID, Name: c.Name, Color: c.Color}
	if _, err := r.db.NewInsert().Model(&rec).Exec(ctx); err != nil {
		return domain.Category{}, err
	}
	return rec.toDomain(), nil
}

// TaskTimeline returns a task's audit trail, oldest first.
func (r *Repository) TaskTimeline(ctx context.Context, taskID string) ([]domain.TimelineEntry, error) {
	var recs []timelineRecord
	err := r.db.NewSelect().Model(&recs).
		Where("tl.task_id = ?", taskID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TimelineEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out, nil
}

func selectLiveColumn(ctx context.Context, tx bun.Tx, columnID string) (columnRecord, error) {
	var col columnRecord
	if err := tx.NewSelect().Model(&col).Where("c.id = ?", columnID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return columnRecord{}, domain.ErrInvalidTarget
		}
		return columnRecord{}, err
	}
	return col, nil
}

// columnInScope reports whether a column can host work from the given
// (project, team). Project-wide columns accept any team in the project.
func columnInScope(col columnRecord, projectID, teamID string) bool {
	if col.ProjectID != projectID {
		return false
	}
	return col.TeamID == "" || col.TeamID == teamID
}

func appendTimeline(ctx context.Context, tx bun.Tx, taskID, action string, detail map[string]any, at time.Time) error {
	entry := timelineRecord{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Action:    action,
		CreatedAt: at,
	}
	if detail != nil {
		data, err := sonic.Marshal(detail)
		if err != nil {
			return err
		}
		entry.Detail = string(data)
	}
	_, err := tx.NewInsert().Model(&entry).Exec(ctx)
	return err
}
