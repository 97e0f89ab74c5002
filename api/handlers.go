package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
	"board-api/storage"
)

const maxBodyBytes = 1 << 20

// Register wires up all board routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, monitor HealthReporter, deduper Deduper, logger *log.Logger) {
	e.GET("/api/board", getBoard(store, logger))
	e.GET("/api/categories", getCategories(store))
	e.POST("/api/tasks", createTask(store, deduper, logger))
	e.PATCH("/api/tasks/:id", updateTask(store, deduper, logger))
	e.DELETE("/api/tasks/:id", deleteTask(store, deduper, logger))
	e.POST("/api/tasks/:id/move", moveTask(store, deduper, logger))
	e.GET("/api/tasks/:id/timeline", getTimeline(store))
	e.POST("/api/columns", createColumn(store, deduper, logger))
	e.PATCH("/api/columns/:id", updateColumn(store, deduper, logger))
	e.DELETE("/api/columns/:id", deleteColumn(store, deduper, logger))
	e.POST("/api/categories", createCategory(store, deduper, logger))
	e.GET("/healthz", healthz(monitor))
}

func getBoard(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		// opErr is the failure recorded on the span, independent of the JSON
		// writer's result.
		var opErr error
		defer func() {
			metrics.Log(c.Response().Status, opErr)
		}()

		projectID := c.QueryParam("projectId")
		if projectID == "" {
			metrics.SetErrorStage("missing_project")
			return c.JSON(http.StatusBadRequest, envelope{Error: "projectId is required"})
		}
		teamID := c.QueryParam("teamId")

		fetchStart := time.Now()
		board, source, fetchErr := store.FetchBoard(ctx, projectID, teamID)
		metrics.ObserveFetch(time.Since(fetchStart))
		metrics.SetSource(string(source))
		if fetchErr != nil {
			opErr = fetchErr
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			return c.JSON(http.StatusInternalServerError, envelope{Error: "board load failed", Source: string(source)})
		}
		metrics.SetColumnsReturned(len(board.Columns))
		metrics.SetTasksReturned(len(board.Tasks))

		encodeStart := time.Now()
		encodeErr := c.JSON(http.StatusOK, envelope{Data: board, Success: true, Source: string(source)})
		metrics.ObserveEncode(time.Since(encodeStart))
		if encodeErr != nil {
			opErr = encodeErr
			metrics.SetErrorStage("encode_response")
		}
		return encodeErr
	}
}

func getCategories(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.QueryParam("projectId")
		if projectID == "" {
			return c.JSON(http.StatusBadRequest, envelope{Error: "projectId is required"})
		}
		cats, source, err := store.FetchCategories(c.Request().Context(), projectID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, envelope{Error: "categories load failed", Source: string(source)})
		}
		return c.JSON(http.StatusOK, envelope{Data: cats, Success: true, Source: string(source)})
	}
}

type moveRequest struct {
	ColumnID  string `json:"columnId"`
	SortOrder int    `json:"sortOrder"`
}

func moveTask(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		taskID := c.Param("id")

		var req moveRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, envelope{Error: "invalid request body"})
		}
		if req.ColumnID == "" {
			return c.JSON(http.StatusBadRequest, envelope{Error: "columnId is required"})
		}

		claim, handled, herr := claimIdempotency(c, deduper, taskID, logger)
		if handled {
			return herr
		}

		moved, err := store.MoveTask(ctx, taskID, req.ColumnID, req.SortOrder)
		if err != nil {
			claim.release(ctx)
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusOK, envelope{Data: moved, Success: true, Source: string(storage.SourceDatabase)})
	}
}

func createTask(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var t domain.Task
		if err := decodeBody(c, &t); err != nil {
			return c.JSON(http.StatusBadRequest, envelope{Error: "invalid request body"})
		}
		if t.Title == "" || t.ColumnID == "" || t.ProjectID == "" {
			return c.JSON(http.StatusBadRequest, envelope{Error: "title, columnId and projectId are required"})
		}

		claim, handled, herr := claimIdempotency(c, deduper, t.ProjectID, logger)
		if handled {
			return herr
		}

		created, err := store.CreateTask(ctx, t)
		if err != nil {
			claim.release(ctx)
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusCreated, envelope{Data: created, Success: true, Source: string(storage.SourceDatabase)})
	}
}

func updateTask(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var t domain.Task
		if err := decodeBody(c, &t); err != nil {
			return c.JSON(http.StatusBadRequest, envelope{Error: "invalid request body"})
		}
		t.ID = c.Param("id")

		claim, handled, herr := claimIdempotency(c, deduper, t.ID, logger)
		if handled {
			return herr
		}

		updated, err := store.UpdateTask(ctx, t)
		if err != nil {
			claim.release(ctx)
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusOK, envelope{Data: updated, Success: true, Source: string(storage.SourceDatabase)})
	}
}

func deleteTask(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		taskID := c.Param("id")

		claim, handled, herr := claimIdempotency(c, deduper, taskID, logger)
		if handled {
			return herr
		}

		deleted, err := store.DeleteTask(ctx, taskID)
		if err != nil {
			claim.release(ctx)
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusOK, envelope{Data: deleted, Success: true, Source: string(storage.SourceDatabase)})
	}
}

func getTimeline(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		entries, err := store.TaskTimeline(c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, envelope{Error: "timeline load failed"})
		}
		return c.JSON(http.StatusOK, envelope{Data: entries, Success: true, Source: string(storage.SourceDatabase)})
	}
}

func createColumn(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var col domain.Column
		if err := decodeBody(c, &col); err != nil {
			return c.JSON(http.StatusBadRequest, envelope{Error: "invalid request body"})
		}
		if col.Name == "" || col.ProjectID == "" {
			return c.JSON(http.StatusBadRequest, envelope{Error: "name and projectId are required"})
		}

		claim, handled, herr := claimIdempotency(c, deduper, col.ProjectID, logger)
		if handled {
			return herr
		}

		created, err := store.CreateColumn(ctx, col)
		if err != nil {
			claim.release(ctx)
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusCreated, envelope{Data: created, Success: true, Source: string(storage.SourceDatabase)})
	}
}

func updateColumn(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var col domain.Column
		if err := decodeBody(c, &col); err != nil {
			return c.JSON(http.StatusBadRequest, envelope{Error: "invalid request body"})
		}
		col.ID = c.Param("id")

		claim, handled, herr := claimIdempotency(c, deduper, col.ID, logger)
		if handled {
			return herr
		}

		updated, err := store.UpdateColumn(ctx, col)
		if err != nil {
			claim.release(ctx)
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusOK, envelope{Data: updated, Success: true, Source: string(storage.SourceDatabase)})
	}
}

func deleteColumn(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		columnID := c.Param("id")

		claim, handled, herr := claimIdempotency(c, deduper, columnID, logger)
		if handled {
			return herr
		}

		deleted, err := store.DeleteColumn(ctx, columnID)
		if err != nil {
			claim.release(ctx)
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusOK, envelope{Data: deleted, Success: true, Source: string(storage.SourceDatabase)})
	}
}

func createCategory(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var cat domain.Category
		if err := decodeBody(c, &cat); err != nil {
			return c.JSON(http.StatusBadRequest, envelope{Error: "invalid request body"})
		}
		if cat.Name == "" || cat.ProjectID == "" {
			return c.JSON(http.StatusBadRequest, envelope{Error: "name and projectId are required"})
		}

		claim, handled, herr := claimIdempotency(c, deduper, cat.ProjectID, logger)
		if handled {
			return herr
		}

		created, err := store.CreateCategory(ctx, cat)
		if err != nil {
			claim.release(ctx)
			return writeFailure(c, err)
		}
		return c.JSON(http.StatusCreated, envelope{Data: created, Success: true, Source: string(storage.SourceDatabase)})
	}
}

type healthResponse struct {
	Cache       any       `json:"cache"`
	LastChecked time.Time `json:"lastChecked,omitempty"`
}

func healthz(monitor HealthReporter) echo.HandlerFunc {
	return func(c echo.Context) error {
		if monitor == nil {
			return c.NoContent(http.StatusOK)
		}
		health, checked := monitor.Status()
		return c.JSON(http.StatusOK, envelope{
			Data:    healthResponse{Cache: health, LastChecked: checked},
			Success: true,
		})
	}
}

// decodeBody reads a bounded JSON body into dst.
func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxBodyBytes)
	dec := sonic.ConfigStd.NewDecoder(lr)
	return dec.Decode(dst)
}

// writeFailure maps repository errors onto the response envelope. Validation
// failures keep their message; anything else is reported as a generic write
// failure since the details belong in the log, not the client.
func writeFailure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, envelope{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidTarget):
		return c.JSON(http.StatusUnprocessableEntity, envelope{Error: err.Error()})
	case errors.Is(err, domain.ErrColumnNotEmpty):
		return c.JSON(http.StatusConflict, envelope{Error: err.Error()})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, envelope{Error: "write failed"})
	}
}
