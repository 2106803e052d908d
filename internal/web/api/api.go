package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"autoflow/internal/db"
	"autoflow/internal/engine"
	"autoflow/internal/geofence"
	"autoflow/internal/models"
	"autoflow/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// WorkflowStore is the persistence the API needs
type WorkflowStore interface {
	List(ctx context.Context, enabledOnly bool) ([]*db.Record, error)
	Get(ctx context.Context, id string) (*db.Record, error)
	Insert(ctx context.Context, wf *models.Workflow) error
	Update(ctx context.Context, wf *models.Workflow) error
	Restore(ctx context.Context, rec *db.Record) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
	DeleteByMode(ctx context.Context, modeID string) ([]string, error)
}

// Engine is the part of the engine the API drives
type Engine interface {
	WorkflowSaved(ctx context.Context, wf *models.Workflow) error
	WorkflowDeleted(ctx context.Context, workflowID string) error
	RunNow(ctx context.Context, workflowID string) (engine.ExecutionResult, error)
	ScanAndRun(ctx context.Context, workflowID string) (*engine.DispatchResult, error)
	Submit(ev models.Event) error
	DisarmAll(ctx context.Context) error
}

// Schedules reports upcoming fire times; optional
type Schedules interface {
	Next(workflowID string) (time.Time, bool)
}

// Dependencies are shared by every route group
type Dependencies struct {
	Store     WorkflowStore
	Engine    Engine
	Validator *validation.Validator
	Schedules Schedules
	Gatherer  prometheus.Gatherer
	Health    func(ctx context.Context) error
	Logger    *zap.Logger
	Clock     func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// respondError maps domain errors to status codes
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		verr    *validation.ValidationError
		capErr  *geofence.CapacityError
		execErr *engine.ExecutionError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "field": verr.Field, "reason": verr.Reason})
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
	case errors.As(err, &capErr):
		c.JSON(http.StatusConflict, gin.H{"error": capErr.Error(), "limit": capErr.Limit})
	case errors.Is(err, engine.ErrWorkflowDisabled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrQueueFull), errors.Is(err, engine.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &execErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": execErr.Error()})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
