// Package api wires ELISA's HTTP surface: the gin router, bearer auth,
// and the per-session Orchestrator it drives. Grounded on the gin-based
// prototype in codeready-toolchain-tarsy/pkg/api/handlers.go for handler
// idiom, and on that package's later echo-based server.go for structural
// shape (Server struct, setupRoutes, aggregated health check).
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/elisa-build/elisa/internal/config"
)

// Server owns the gin engine and the dependencies every handler needs.
type Server struct {
	cfg    *config.Config
	orch   *Orchestrator
	secret []byte

	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the configured gin engine. secret signs/validates
// bearer tokens; IssueToken with the same secret mints the token the
// operator is handed at startup.
func NewServer(cfg *config.Config, orch *Orchestrator, secret []byte) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, orch: orch, secret: secret, engine: gin.New()}
	s.engine.Use(gin.Recovery(), securityHeaders())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.Use(bearerAuth(s.secret))
	{
		api.POST("/workspace/save", s.handleWorkspaceSave)
		api.POST("/workspace/load", s.handleWorkspaceLoad)
		api.POST("/workspace/inspect", s.handleWorkspaceInspect)
		api.POST("/workspace/reset", s.handleWorkspaceReset)

		api.POST("/session", s.handleSessionCreate)
		api.POST("/session/:id/cancel", s.handleSessionCancel)
		api.POST("/session/:id/gate", s.handleSessionGate)
		api.POST("/session/:id/answer", s.handleSessionAnswer)
	}

	// Health is unauthenticated: the dashboard needs it to decide whether
	// to even show a token-entry prompt.
	s.engine.GET("/api/health", s.handleHealth)

	if s.cfg.DevMode && s.cfg.DashboardDir == "" {
		s.engine.POST("/api/internal/config", s.handleInternalConfig)
	}

	ws := s.engine.Group("/ws")
	ws.Use(bearerAuthQuery(s.secret))
	ws.GET("/session/:id", s.handleSessionWS)

	if s.cfg.DashboardDir != "" {
		s.engine.NoRoute(func(c *gin.Context) {
			c.File(s.cfg.DashboardDir + "/index.html")
		})
		s.engine.Static("/assets", s.cfg.DashboardDir+"/assets")
	}
}

// Start runs the HTTP server until Shutdown is called or it fails.
func (s *Server) Start() error {
	s.http = &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.engine}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Engine exposes the underlying gin engine, for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }
