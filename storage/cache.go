package storage

import (
	"context"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"board-api/cache"
	"board-api/domain"
)

// Source tags where a read result came from. Used for observability and
// tests, never for business logic.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
)

type backend interface {
	LoadBoard(ctx context.Context, projectID, teamID string) (domain.Board, error)
	ListCategories(ctx context.Context, projectID string) ([]domain.Category, error)
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

// Cache layers read-through caching and write-then-invalidate semantics over
// a backend repository. The database stays authoritative: repository errors
// always propagate, cache errors never do. With a nil store every call takes
// the repository path and Redis is never touched.
type Cache struct {
	base   backend
	store  cache.Store
	ttl    cache.TTLPolicy
	logger *log.Logger
}

// NewCache wraps base with caching. A nil store disables caching entirely.
func NewCache(base backend, store cache.Store, ttl cache.TTLPolicy, logger *log.Logger) *Cache {
	if base == nil {
		panic("storage.NewCache: base repository is nil")
	}
	if !ttl.Valid() {
		ttl = cache.DefaultTTLPolicy()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{base: base, store: store, ttl: ttl, logger: logger}
}

// FetchBoard serves a board from cache when possible and falls back to the
// repository on a miss or any cache failure, repopulating best-effort.
func (c *Cache) FetchBoard(ctx context.Context, projectID, teamID string) (domain.Board, Source, error) {
	key := cache.BoardKey(projectID, teamID)
	if c.store != nil {
		if data, ok := c.store.Get(ctx, key); ok {
			var board domain.Board
			if err := sonic.Unmarshal(data, &board); err == nil {
				return board, SourceCache, nil
			}
			// Corrupt payload: drop it and treat as a miss.
			c.invalidate(ctx, key)
		}
	}

	board, err := c.base.LoadBoard(ctx, projectID, teamID)
	if err != nil {
		return domain.Board{}, SourceDatabase, err
	}
	c.populateBoard(ctx, key, board)
	return board, SourceDatabase, nil
}

// FetchCategories is the read-through path for project reference data.
func (c *Cache) FetchCategories(ctx context.Context, projectID string) ([]domain.Category, Source, error) {
	key := cache.CategoriesKey(projectID)
	if c.store != nil {
		if data, ok := c.store.Get(ctx, key); ok {
			var cats []domain.Category
			if err := sonic.Unmarshal(data, &cats); err == nil {
				return cats, SourceCache, nil
			}
			c.invalidate(ctx, key)
		}
	}

	cats, err := c.base.ListCategories(ctx, projectID)
	if err != nil {
		return nil, SourceDatabase, err
	}
	c.populateCategories(ctx, key, cats)
	return cats, SourceDatabase, nil
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.invalidateBoards(ctx, created.ProjectID, created.TeamID)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	updated, err := c.base.UpdateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.invalidateBoards(ctx, updated.ProjectID, updated.TeamID)
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, taskID string) (domain.Task, error) {
	deleted, err := c.base.DeleteTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	c.invalidateBoards(ctx, deleted.ProjectID, deleted.TeamID)
	return deleted, nil
}

func (c *Cache) MoveTask(ctx context.Context, taskID, newColumnID string, newSortOrder int) (domain.Task, error) {
	moved, err := c.base.MoveTask(ctx, taskID, newColumnID, newSortOrder)
	if err != nil {
		return domain.Task{}, err
	}
	c.invalidateBoards(ctx, moved.ProjectID, moved.TeamID)
	return moved, nil
}

func (c *Cache) CreateColumn(ctx context.Context, col domain.Column) (domain.Column, error) {
	created, err := c.base.CreateColumn(ctx, col)
	if err != nil {
		return domain.Column{}, err
	}
	c.invalidateBoards(ctx, created.ProjectID, created.TeamID)
	c.invalidate(ctx, cache.ColumnKey(created.ID))
	return created, nil
}

func (c *Cache) UpdateColumn(ctx context.Context, col domain.Column) (domain.Column, error) {
	updated, err := c.base.UpdateColumn(ctx, col)
	if err != nil {
		return domain.Column{}, err
	}
	c.invalidateBoards(ctx, updated.ProjectID, updated.TeamID)
	c.invalidate(ctx, cache.ColumnKey(updated.ID))
	return updated, nil
}

func (c *Cache) DeleteColumn(ctx context.Context, columnID string) (domain.Column, error) {
	deleted, err := c.base.DeleteColumn(ctx, columnID)
	if err != nil {
		return domain.Column{}, err
	}
	c.invalidateBoards(ctx, deleted.ProjectID, deleted.TeamID)
	c.invalidate(ctx, cache.ColumnKey(deleted.ID))
	return deleted, nil
}

func (c *Cache) CreateCategory(ctx context.Context, cat domain.Category) (domain.Category, error) {
	created, err := c.base.CreateCategory(ctx, cat)
	if err != nil {
		return domain.Category{}, err
	}
	c.invalidate(ctx, cache.CategoriesKey(created.ProjectID))
	return created, nil
}

// TaskTimeline reads are audit lookups and bypass the cache.
func (c *Cache) TaskTimeline(ctx context.Context, taskID string) ([]domain.TimelineEntry, error) {
	return c.base.TaskTimeline(ctx, taskID)
}

// populateBoard writes a board payload best-effort. Encoding or store
// failures are logged and swallowed; the caller already holds the
// authoritative result.
func (c *Cache) populateBoard(ctx context.Context, key string, board domain.Board) {
	if c.store == nil {
		return
	}
	data, err := sonic.Marshal(board)
	if err != nil {
		c.logger.WithFields(log.Fields{"key": key, "error": err.Error()}).Warn("cache encode failed")
		return
	}
	_ = c.store.Set(ctx, key, data, c.ttl.Board)
}

func (c *Cache) populateCategories(ctx context.Context, key string, cats []domain.Category) {
	if c.store == nil {
		return
	}
	data, err := sonic.Marshal(cats)
	if err != nil {
		c.logger.WithFields(log.Fields{"key": key, "error": err.Error()}).Warn("cache encode failed")
		return
	}
	_ = c.store.Set(ctx, key, data, c.ttl.Categories)
}

// invalidateBoards drops every board entry the mutated record can appear in.
// Team-scoped records live on exactly one board; project-wide records are
// embedded in every team's board, so the whole project scope is evicted.
func (c *Cache) invalidateBoards(ctx context.Context, projectID, teamID string) {
	if c.store == nil {
		return
	}
	if teamID != "" {
		c.invalidate(ctx, cache.BoardKey(projectID, teamID))
		return
	}
	if _, err := c.store.DeletePattern(ctx, cache.ProjectBoardsPattern(projectID)); err != nil {
		c.logger.WithFields(log.Fields{"project": projectID, "error": err.Error()}).Warn("cache invalidation failed")
	}
}

// invalidate removes the given keys best-effort. A failed invalidation never
// turns a committed write into a reported failure; the entry's TTL bounds
// how long a stale copy can live.
func (c *Cache) invalidate(ctx context.Context, keys ...string) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.logger.WithFields(log.Fields{"keys": keys, "error": err.Error()}).Warn("cache invalidation failed")
	}
}
