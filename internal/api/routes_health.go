package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/burnnote/internal/app"
	"github.com/charlesng35/burnnote/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, health *handlers.HealthHandler) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		r.GET("/health/live", disabledHealthHandler)
		r.GET("/health/ready", disabledHealthHandler)
		return
	}

	registerHealthEndpoints(r, health)
	registerHealthEndpoints(r.Group("/api"), health)
}

func registerHealthEndpoints(router gin.IRouter, health *handlers.HealthHandler) {
	router.GET("/health", health.Overall)
	router.GET("/health/live", health.Live)
	router.GET("/health/ready", health.Ready)
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
