package api

import (
	"context"
	"errors"
	"net/http"

	"autoflow/internal/db"
	"autoflow/internal/engine"
	"autoflow/internal/geofence"
	"autoflow/internal/models"
	"autoflow/internal/web/middleware"
	webModels "autoflow/internal/web/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RegisterWorkflowRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, deps Dependencies) {
	log := deps.Logger

	render := func(c *gin.Context, status int, rec *db.Record) {
		resp, err := webModels.FromRecord(rec)
		if err != nil {
			respondError(c, log, err)
			return
		}
		if deps.Schedules != nil {
			if next, ok := deps.Schedules.Next(rec.Workflow.ID); ok {
				resp.NextRun = &next
			}
		}
		c.JSON(status, resp)
	}

	// decode builds and validates a workflow from the request body
	decode := func(c *gin.Context) (*models.Workflow, bool) {
		var req webModels.WorkflowRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return nil, false
		}
		wf, err := req.ToWorkflow()
		if err == nil {
			err = deps.Validator.ValidateWorkflow(wf)
		}
		if err != nil {
			respondError(c, log, err)
			return nil, false
		}
		return wf, true
	}

	// saved runs the engine hooks; only a capacity error is reported to the caller
	saved := func(ctx context.Context, wf *models.Workflow) error {
		err := deps.Engine.WorkflowSaved(ctx, wf)
		var capErr *geofence.CapacityError
		if errors.As(err, &capErr) {
			return err
		}
		if err != nil {
			log.Warn("workflow saved but engine hooks failed", zap.String("workflow_id", wf.ID), zap.Error(err))
		}
		return nil
	}

	workflows := r.Group("/workflows")
	workflows.Use(middleware.RequireAuth())
	{
		workflows.GET("", func(c *gin.Context) {
			records, err := deps.Store.List(c, c.Query("enabled") == "true")
			if err != nil {
				respondError(c, log, err)
				return
			}
			out := make([]webModels.WorkflowResponse, 0, len(records))
			for _, rec := range records {
				resp, err := webModels.FromRecord(rec)
				if err != nil {
					respondError(c, log, err)
					return
				}
				out = append(out, resp)
			}
			c.JSON(http.StatusOK, out)
		})

		workflows.GET("/:id", func(c *gin.Context) {
			rec, err := deps.Store.Get(c, c.Param("id"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			render(c, http.StatusOK, rec)
		})

		workflows.POST("", func(c *gin.Context) {
			wf, ok := decode(c)
			if !ok {
				return
			}
			if err := deps.Store.Insert(c, wf); err != nil {
				respondError(c, log, err)
				return
			}
			if err := saved(c, wf); err != nil {
				if derr := deps.Store.Delete(c, wf.ID); derr != nil {
					log.Error("rollback of rejected workflow failed", zap.String("workflow_id", wf.ID), zap.Error(derr))
				}
				respondError(c, log, err)
				return
			}
			log.Info("workflow created", zap.String("workflow_id", wf.ID), zap.String("workflow_name", wf.Name))
			render(c, http.StatusCreated, &db.Record{Workflow: wf})
		})

		workflows.PUT("/:id", func(c *gin.Context) {
			prev, err := deps.Store.Get(c, c.Param("id"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			wf, ok := decode(c)
			if !ok {
				return
			}
			wf.ID = prev.Workflow.ID
			wf.CreatedAt = prev.Workflow.CreatedAt

			if err := deps.Store.Update(c, wf); err != nil {
				respondError(c, log, err)
				return
			}
			if err := saved(c, wf); err != nil {
				if rerr := deps.Store.Restore(c, prev); rerr != nil {
					log.Error("restore of previous workflow failed", zap.String("workflow_id", wf.ID), zap.Error(rerr))
				} else if rerr := deps.Engine.WorkflowSaved(c, prev.Workflow); rerr != nil {
					log.Warn("re-arming previous workflow failed", zap.String("workflow_id", wf.ID), zap.Error(rerr))
				}
				respondError(c, log, err)
				return
			}
			log.Info("workflow replaced", zap.String("workflow_id", wf.ID))
			render(c, http.StatusOK, &db.Record{Workflow: wf})
		})

		workflows.PATCH("/:id/enabled", func(c *gin.Context) {
			var req webModels.EnabledRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			rec, err := deps.Store.Get(c, c.Param("id"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			wf := rec.Workflow
			previous := wf.Enabled
			if err := deps.Store.SetEnabled(c, wf.ID, *req.Enabled); err != nil {
				respondError(c, log, err)
				return
			}
			wf.Enabled = *req.Enabled
			if err := saved(c, wf); err != nil {
				if rerr := deps.Store.SetEnabled(c, wf.ID, previous); rerr != nil {
					log.Error("restore of enabled flag failed", zap.String("workflow_id", wf.ID), zap.Error(rerr))
				}
				respondError(c, log, err)
				return
			}
			render(c, http.StatusOK, rec)
		})

		workflows.DELETE("/:id", func(c *gin.Context) {
			id := c.Param("id")
			if err := deps.Store.Delete(c, id); err != nil {
				respondError(c, log, err)
				return
			}
			if err := deps.Engine.WorkflowDeleted(c, id); err != nil {
				log.Warn("workflow deleted but engine cleanup failed", zap.String("workflow_id", id), zap.Error(err))
			}
			c.JSON(http.StatusOK, gin.H{"status": "Workflow deleted successfully"})
		})

		workflows.POST("/:id/run", func(c *gin.Context) {
			res, err := deps.Engine.RunNow(c, c.Param("id"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, executionView(res))
		})

		workflows.POST("/:id/scan", func(c *gin.Context) {
			res, err := deps.Engine.ScanAndRun(c, c.Param("id"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			if res == nil {
				c.JSON(http.StatusOK, gin.H{"found": false})
				return
			}
			results := make([]gin.H, 0, len(res.Results))
			for _, r := range res.Results {
				results = append(results, executionView(r))
			}
			c.JSON(http.StatusOK, gin.H{"found": true, "matched": res.Matched, "results": results})
		})
	}

	modes := r.Group("/modes")
	modes.Use(middleware.RequireAuth())
	{
		modes.DELETE("/:id/workflows", func(c *gin.Context) {
			ids, err := deps.Store.DeleteByMode(c, c.Param("id"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			for _, id := range ids {
				if err := deps.Engine.WorkflowDeleted(c, id); err != nil {
					log.Warn("engine cleanup failed", zap.String("workflow_id", id), zap.Error(err))
				}
			}
			if ids == nil {
				ids = []string{}
			}
			c.JSON(http.StatusOK, gin.H{"deleted": ids})
		})
	}
}

func executionView(res engine.ExecutionResult) gin.H {
	errs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, e.Error())
	}
	return gin.H{
		"workflowId": res.WorkflowID,
		"executed":   res.Executed,
		"failed":     res.Failed,
		"skipped":    res.Skipped,
		"errors":     errs,
	}
}
