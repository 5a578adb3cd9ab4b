// Package httpapi implements Forgetful's REST surface: JSON over
// HTTP/1.1, authenticated via the auth collaborator's
// ResolveUser(request) -> UserID contract, translating apperr.Kind values
// to status codes at this one boundary and nowhere else.
package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/auth"
	"github.com/forgetful-ai/forgetful/internal/autolink"
	"github.com/forgetful-ai/forgetful/internal/composer"
	"github.com/forgetful-ai/forgetful/internal/graph"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Server provides Forgetful's REST endpoints.
type Server struct {
	echo    *echo.Echo
	repo    storage.Repository
	compose *composer.Composer
	graph   *graph.Traverser
	linker  *autolink.Linker
	auth    *auth.Resolver
	logger  *zap.Logger
	config  Config
	metrics *Metrics
}

// NewServer constructs a Server. repo, compose, traverser, linker, and
// authResolver are all required; a nil logger falls back to a no-op one.
func NewServer(repo storage.Repository, compose *composer.Composer, traverser *graph.Traverser, linker *autolink.Linker, authResolver *auth.Resolver, logger *zap.Logger, cfg Config) (*Server, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if compose == nil {
		return nil, fmt.Errorf("composer cannot be nil")
	}
	if traverser == nil {
		return nil, fmt.Errorf("graph traverser cannot be nil")
	}
	if linker == nil {
		return nil, fmt.Errorf("autolinker cannot be nil")
	}
	if authResolver == nil {
		return nil, fmt.Errorf("auth resolver cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpMetrics := NewMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(httpMetrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		repo:    repo,
		compose: compose,
		graph:   traverser,
		linker:  linker,
		auth:    authResolver,
		logger:  logger,
		config:  cfg,
		metrics: httpMetrics,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", auth.Middleware(s.auth))
	v1.GET("/memories", s.handleListMemories)
	v1.POST("/memories", s.handleCreateMemory)
	v1.GET("/memories/:id", s.handleGetMemory)
	v1.PUT("/memories/:id", s.handleUpdateMemory)
	v1.DELETE("/memories/:id", s.handleDeleteMemory)
	v1.POST("/memories/search", s.handleSearchMemories)
	v1.POST("/memories/:id/links", s.handleCreateLinks)
	v1.GET("/memories/:id/links", s.handleGetLinks)
	v1.GET("/graph", s.handleGraph)
	v1.GET("/graph/subgraph", s.handleSubgraph)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(200, map[string]string{"status": "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
