// Package server exposes the retrieval engine over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/askmatch/askmatch/engine"
	"github.com/askmatch/askmatch/internal/profile"
	"github.com/askmatch/askmatch/metrics"
)

type Server struct {
	Profile *profile.Profile
	Engine  *engine.Engine

	echoServer *echo.Echo
	logger     *slog.Logger
}

func NewServer(profile *profile.Profile, eng *engine.Engine, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency)
			return nil
		},
	}))

	s := &Server{
		Profile:    profile,
		Engine:     eng,
		echoServer: e,
		logger:     logger,
	}

	apiV1 := e.Group("/api/v1")
	apiV1.POST("/chat", s.chat)
	apiV1.GET("/suggest", s.suggest)

	// Reload re-reads the whole knowledge directory; keep abusive callers
	// from turning it into a load generator.
	admin := apiV1.Group("/admin", middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(1)),
	}))
	admin.POST("/reload", s.reload)

	e.GET("/healthz", s.health)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return s
}

// Start begins serving and blocks until the listener fails or is shut down.
func (s *Server) Start(_ context.Context) error {
	if s.Profile.UNIXSock != "" {
		listener, err := net.Listen("unix", s.Profile.UNIXSock)
		if err != nil {
			return err
		}
		s.echoServer.Listener = listener
		s.logger.Info("server listening", "unix-sock", s.Profile.UNIXSock)
		return s.echoServer.Start("")
	}
	addr := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	s.logger.Info("server listening", "addr", addr)
	return s.echoServer.Start(addr)
}

// Shutdown drains in-flight requests and stops the engine's background
// work.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server gracefully", "error", err)
	}
	s.Engine.Close()
	s.logger.Info("server stopped")
}
