// Package api provides a read-only introspection HTTP API over a running
// resolver: health, stats, server pool state, and answer cache state. It
// never mutates resolver configuration; every route is a GET.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/resolverd/internal/api/handlers"
	"github.com/jroosing/resolverd/internal/api/middleware"
	"github.com/jroosing/resolverd/internal/config"
	"github.com/jroosing/resolverd/internal/resolver"
)

// Server is the introspection HTTP server.
//
// Security note: do not expose this to untrusted networks without
// configuring an API key.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds a Server exposing res's state under cfg's host/port, identified
// by nodeID in the /stats response.
func New(cfg config.APIConfig, res *resolver.Resolver, nodeID string, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(res, nodeID, logger)
	RegisterRoutes(engine, h, cfg)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
