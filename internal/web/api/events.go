package api

import (
	"net/http"

	"autoflow/internal/engine"
	"autoflow/internal/models"
	"autoflow/internal/web/middleware"
	webModels "autoflow/internal/web/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RegisterEventRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, deps Dependencies) {
	log := deps.Logger

	authed := r.Group("")
	authed.Use(middleware.RequireAuth())
	{
		authed.POST("/events", func(c *gin.Context) {
			var ev models.Event
			if err := c.ShouldBindJSON(&ev); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			ev, err := engine.NormalizeEvent(ev, deps.now())
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := deps.Engine.Submit(ev); err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"id": ev.ID})
		})

		authed.DELETE("/geofences", func(c *gin.Context) {
			if err := deps.Engine.DisarmAll(c); err != nil {
				respondError(c, log, err)
				return
			}
			log.Info("all geofences disarmed")
			c.JSON(http.StatusOK, gin.H{"status": "All geofences disarmed"})
		})

		authed.POST("/triggers/validate", func(c *gin.Context) {
			var req webModels.TriggerValueRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if err := deps.Validator.ValidateTriggerValue(req.Type, req.Value, deps.now()); err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"valid": true})
		})
	}
}

func RegisterHealthRoutes(r *gin.Engine, deps Dependencies) {
	r.GET("/healthz", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c); err != nil {
				deps.Logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
