// Package handlers implements the resolver introspection API's endpoint
// handlers.
//
// @title resolverd Introspection API
// @version 1.0
// @description Read-only API for resolver statistics, server pool health, and answer cache state.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"log/slog"
	"time"

	"github.com/jroosing/resolverd/internal/resolver"
)

// Handler contains dependencies for API handlers.
type Handler struct {
	res       *resolver.Resolver
	logger    *slog.Logger
	nodeID    string
	startTime time.Time
}

// New creates a new Handler wrapping the resolver instance to introspect.
func New(res *resolver.Resolver, nodeID string, logger *slog.Logger) *Handler {
	return &Handler{
		res:       res,
		logger:    logger,
		nodeID:    nodeID,
		startTime: time.Now(),
	}
}
