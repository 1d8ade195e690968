// Package http is the REST adapter over the approval and template services.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/purchase-approval/internal/application/service"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string // empty disables the metrics endpoint
	Debug           bool
}

// Dependencies are the collaborators behind the routes
type Dependencies struct {
	Approvals service.ApprovalService
	Templates service.TemplateService
	Tokens    TokenValidator
	Health    HealthFunc
	Logger    Logger
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	tokens     TokenValidator
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies) *Server {
	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(deps.Approvals, deps.Templates, deps.Health, deps.Logger),
		tokens:   deps.Tokens,
		logger:   deps.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(metricsMiddleware())
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)
	if s.config.MetricsPath != "" {
		s.router.GET(s.config.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := s.router.Group("/api", authMiddleware(s.tokens), clientInfoMiddleware())

	requests := api.Group("/requests")
	{
		requests.POST("", h.SubmitRequest)
		requests.GET("", h.ListMine)
		requests.GET("/pending", h.ListPending)
		requests.GET("/status/:status",
			requireRole(entity.RoleAdmin, entity.RolePurchasing), h.ListByStatus)
		requests.GET("/:id", h.GetRequest)
		requests.GET("/:id/access", h.GetAccess)
		requests.POST("/:id/approve", h.Approve)
		requests.POST("/:id/reject", h.Reject)
		requests.POST("/:id/cancel", h.Cancel)
		requests.POST("/:id/start-purchase", h.StartPurchase)
		requests.POST("/:id/complete", h.Complete)
		requests.GET("/:id/history", h.History)
		requests.GET("/:id/history/export", h.ExportHistory)
	}

	templates := api.Group("/templates")
	{
		templates.GET("", h.ListTemplates)
		templates.GET("/categories", h.Categories)
		templates.GET("/match", h.MatchTemplates)
		templates.GET("/:id", h.GetTemplate)

		admin := templates.Group("", requireRole(entity.RoleAdmin))
		admin.POST("", h.CreateTemplate)
		admin.PUT("/:id", h.UpdateTemplate)
		admin.DELETE("/:id", h.DeleteTemplate)
		admin.POST("/:id/deactivate", h.DeactivateTemplate)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", s.config.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return s.config.Addr
}
