package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jroosing/resolverd/internal/api/handlers"
	"github.com/jroosing/resolverd/internal/api/middleware"
	"github.com/jroosing/resolverd/internal/config"
)

// RegisterRoutes wires the read-only introspection endpoints. Every route
// here is a GET: this API exposes resolver state, it never mutates it.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg config.APIConfig) {
	api := r.Group("/api/v1")

	if cfg.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.APIKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.GET("/servers", h.Servers)
	api.GET("/cache", h.Cache)
}
