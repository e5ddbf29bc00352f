// Package api provides the HTTP API server for Hostmesh.
// It uses Echo framework to serve REST endpoints and a WebSocket feed of
// session state changes for signaling relays.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/hostmesh/hostmesh/internal/auth"
	"github.com/hostmesh/hostmesh/internal/config"
	"github.com/hostmesh/hostmesh/internal/ratelimit"
	"github.com/hostmesh/hostmesh/internal/registry"
	"github.com/hostmesh/hostmesh/internal/session"
	"github.com/hostmesh/hostmesh/internal/signaling"
	"github.com/hostmesh/hostmesh/internal/storage"
	"github.com/hostmesh/hostmesh/internal/version"
)

// Server represents the Hostmesh API server.
type Server struct {
	echo       *echo.Echo
	config     *config.Config
	store      storage.Store
	hosts      *registry.HostRegistry
	zones      *registry.ZoneRegistry
	sessions   *session.Manager
	hub        *signaling.Hub
	limiter    *ratelimit.Limiter
	authMiddle *auth.Middleware
	log        *logrus.Entry
}

// Deps carries the wired services the server exposes.
type Deps struct {
	Store    storage.Store
	Hosts    *registry.HostRegistry
	Zones    *registry.ZoneRegistry
	Sessions *session.Manager
	Hub      *signaling.Hub
	Limiter  *ratelimit.Limiter
}

// New creates a new API server instance.
func New(cfg *config.Config, deps Deps, log *logrus.Logger) *Server {
	e := echo.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug

	// Set custom error handler
	e.HTTPErrorHandler = HTTPErrorHandler

	server := &Server{
		echo:       e,
		config:     cfg,
		store:      deps.Store,
		hosts:      deps.Hosts,
		zones:      deps.Zones,
		sessions:   deps.Sessions,
		hub:        deps.Hub,
		limiter:    deps.Limiter,
		authMiddle: auth.NewMiddleware(cfg),
		log:        log.WithField("component", "api"),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Logger middleware
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))

	// Recover middleware
	s.echo.Use(middleware.Recover())

	// Security headers middleware
	s.echo.Use(SecurityHeaders)

	// CORS middleware
	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Rate limiting through the shared fixed-window limiter
	if s.config.Security.RateLimitEnabled && s.limiter != nil {
		s.echo.Use(RateLimit(s.limiter))
	}

	// Content-Type validation middleware for API routes
	s.echo.Use(ValidateContentType)

	// Accept header validation middleware
	s.echo.Use(ValidateAcceptHeader)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/", s.healthCheck)

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	// Host routes
	hosts := v1.Group("/hosts")
	hosts.GET("", s.listHosts, s.authMiddle.RequireAuth, s.authMiddle.RequireOperator)
	hosts.POST("", s.registerHost, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)
	hosts.GET("/:id", s.getHost, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)
	hosts.POST("/:id/heartbeat", s.heartbeat, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)
	hosts.GET("/:id/sessions", s.listHostSessions, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)
	hosts.DELETE("/:id", s.unregisterHost, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)

	// Zone routes
	zones := v1.Group("/zones")
	zones.GET("", s.listZones, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)
	zones.POST("", s.upsertZone, s.authMiddle.RequireAuth, s.authMiddle.RequireOperator)
	zones.GET("/:id", s.getZone, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)
	zones.PUT("/:id", s.upsertZone, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireOperator)
	zones.POST("/:id/enable", s.enableZoneP2P, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireOperator)
	zones.POST("/:id/disable", s.disableZoneP2P, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireOperator)
	zones.GET("/:id/best-host", s.selectBestHost, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)
	zones.GET("/:id/sessions", s.listZoneSessions, ValidateIDFormat, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)

	// Session routes
	sessions := v1.Group("/sessions")
	sessions.Use(s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)
	sessions.POST("", s.createSession)
	sessions.GET("/:id", s.getSession, ValidateIDFormat)
	sessions.POST("/:id/activate", s.activateSession, ValidateIDFormat)
	sessions.POST("/:id/pause", s.pauseSession, ValidateIDFormat)
	sessions.POST("/:id/resume", s.resumeSession, ValidateIDFormat)
	sessions.POST("/:id/end", s.endSession, ValidateIDFormat)
	sessions.POST("/:id/fail", s.failSession, ValidateIDFormat)
	sessions.POST("/:id/players", s.addPlayer, ValidateIDFormat)
	sessions.DELETE("/:id/players/:playerId", s.removePlayer, ValidateIDFormat)
	sessions.PUT("/:id/metrics", s.updateSessionMetrics, ValidateIDFormat)

	// Maintenance routes
	v1.POST("/maintenance/cleanup", s.cleanupStaleSessions, s.authMiddle.RequireAuth, s.authMiddle.RequireAdmin)

	// WebSocket feed of session state changes for signaling relays
	v1.GET("/ws/signaling", s.signalingFeed, s.authMiddle.RequireAuth, s.authMiddle.RequireHostOrOperator)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.log.WithFields(logrus.Fields{
		"addr":  addr,
		"debug": s.config.Server.Debug,
	}).Info("starting API server")

	// Configure server timeouts
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	if s.config.Server.TLSEnabled {
		return s.echo.StartTLS(addr, s.config.Server.TLSCert, s.config.Server.TLSKey)
	}

	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down API server")

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	return nil
}

// healthCheck handles health check requests.
func (s *Server) healthCheck(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"error":   "store connection failed",
			"details": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "hostmesh",
		"version": version.Version,
	})
}

// ServeHTTP allows Server to implement http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
