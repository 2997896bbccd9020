// Package server exposes the console over HTTP: a JSON API, live
// snapshot pushes over WebSocket and server-sent events, and Prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chaospilot/incident-console/internal"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Server serves one console
type Server struct {
	console *internal.Console
	cfg     internal.ServerConfig
	router  *gin.Engine
	metrics *metrics
}

// New builds the router. The console must already be started by the
// caller if background checks are wanted.
func New(console *internal.Console, cfg internal.ServerConfig) *Server {
	if internal.GetLogLevel() < internal.LogLevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = internal.Duration(time.Second)
	}

	s := &Server{
		console: console,
		cfg:     cfg,
		router:  gin.New(),
	}
	s.metrics = newMetrics(prometheus.NewRegistry(), console)
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the registry /metrics is served from
func (s *Server) Registry() *prometheus.Registry {
	return s.metrics.registry
}

func (s *Server) setupRoutes() {
	corsConfig := cors.Config{
		AllowOrigins: s.cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:4200", "http://localhost:5173"}
	}

	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(corsConfig))
	s.router.Use(s.metrics.middleware())

	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", s.metrics.handler())
	s.router.GET("/ws", s.websocket)

	api := s.router.Group("/api")
	{
		api.GET("/snapshot", s.snapshot)
		api.GET("/events", s.events)

		api.GET("/messages", s.listMessages)
		api.POST("/messages", s.sendMessage)
		api.DELETE("/messages", s.clearMessages)

		api.GET("/agents", s.listAgents)
		api.GET("/phases", s.listPhases)
		api.GET("/workflows", s.listWorkflows)
		api.GET("/workflows/:id", s.getWorkflow)
		api.GET("/insights", s.listInsights)
		api.GET("/transcript", s.transcript)

		api.GET("/sessions", s.listSessions)
		api.POST("/sessions", s.newSession)
		api.POST("/sessions/:id/resume", s.resumeSession)
		api.DELETE("/sessions/current", s.endSession)

		api.PUT("/autonomous", s.setAutonomous)
		api.PUT("/monitoring", s.setMonitoring)
	}
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		internal.LogInfo("[server] listening on http://%s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve on %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	internal.LogInfo("[server] shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
