// Package api is the gateway's HTTP surface: the forward endpoint, health
// probes, and the admin operations over the security ledger, the connection
// log and the registry.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/burrowgate/burrowgate/internal/api/handlers"
	"github.com/burrowgate/burrowgate/internal/api/middleware"
	"github.com/burrowgate/burrowgate/internal/api/validation"
	"github.com/burrowgate/burrowgate/internal/config"
	"github.com/burrowgate/burrowgate/internal/connlog"
	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/metrics"
	"github.com/burrowgate/burrowgate/internal/security"
	"github.com/burrowgate/burrowgate/internal/tunnel"

	"github.com/gin-gonic/gin"
)

// Deps bundles the gateway services the handlers work against.
type Deps struct {
	Registry *tunnel.Registry
	Ledger   *security.Ledger
	ConnLog  *connlog.Log
	Metrics  *metrics.Metrics
}

// Server owns the gin router and the underlying http.Server.
type Server struct {
	cfg    *config.Config
	router *gin.Engine
	srv    *http.Server
	logger *logging.Logger
}

// NewServer builds the router with all middleware and routes wired. Nothing
// listens until Start.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	validation.Register()

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(deps.Metrics))
	router.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RPS:   cfg.APIRateRPS,
		Burst: cfg.APIRateBurst,
	}))

	s := &Server{
		cfg:    cfg,
		router: router,
		logger: logging.GetGlobalLogger(),
	}
	s.registerRoutes(deps)
	return s
}

func (s *Server) registerRoutes(deps Deps) {
	forwardHandler := handlers.NewForwardHandler(deps.Registry)
	healthHandler := handlers.NewHealthHandler(deps.Registry, time.Now())
	securityHandler := handlers.NewSecurityHandler(deps.Ledger)
	connLogHandler := handlers.NewConnLogHandler(deps.ConnLog)
	maintenanceHandler := handlers.NewMaintenanceHandler(deps.Registry)
	metaHandler := handlers.NewMetaHandler()

	adminAuth := middleware.NewAdminAuth(s.cfg.AdminAPIKey)

	// Public routes: service index and health probes.
	s.router.GET("/", metaHandler.Index)
	s.router.GET("/api/health", healthHandler.Check)
	s.router.GET("/api/health/:name", healthHandler.CheckClient)
	s.router.GET("/api/version", metaHandler.Version)

	// Everything else needs the admin API key.
	admin := s.router.Group("/")
	admin.Use(adminAuth.RequireAdmin())
	{
		admin.POST("/api/forward", forwardHandler.Forward)
		admin.GET("/api/security-status", securityHandler.Status)
		admin.POST("/api/admin/security", securityHandler.Action)
		admin.POST("/api/cleanup-connections", maintenanceHandler.Cleanup)
		admin.GET("/api/admin/connection-logs", connLogHandler.List)
		admin.POST("/api/admin/connection-logs/clear", connLogHandler.Clear)
		admin.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start binds the HTTP port and serves until Shutdown. A bind failure is
// fatal for the gateway and is reported on the returned channel.
func (s *Server) Start() <-chan error {
	s.srv = &http.Server{
		Addr:              ":" + s.cfg.HTTPPort,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server on port %s failed: %w", s.cfg.HTTPPort, err)
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
