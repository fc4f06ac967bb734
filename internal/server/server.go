// Package server provides the HTTP server and Echo setup for the Crewdeck API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/session"
)

// Server is the HTTP server (Echo) with session middleware and registered
// handlers.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// Handler registers routes on the Echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// NewServer builds the Echo server with recovery, request logging, a rate
// limit on the OAuth routes, the session guard, and the given handlers.
func NewServer(log *slog.Logger, addr string, sessions *session.Manager, resolver *identity.Resolver,
	handlers ...Handler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Request().URL.Path, "/auth/")
		},
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(10)),
	}))
	e.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:  sessions.Secret(),
		TokenLookup: "cookie:" + session.CookieUser,
		Skipper:     publicRoute,
		ErrorHandler: func(c echo.Context, _ error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "login required")
		},
	}))
	e.Use(resolver.Middleware())

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With(slog.String("component", "server")),
	}
}

// publicRoute reports whether the path must answer without a session cookie.
// Only /api routes are guarded; onboarding and the identity probe stay open
// because pending and anonymous callers use them.
func publicRoute(c echo.Context) bool {
	path := c.Request().URL.Path
	if !strings.HasPrefix(path, "/api/") {
		return true
	}
	if path == "/api/onboarding" {
		return true
	}
	if path == "/api/users/me" && c.Request().Method == http.MethodGet {
		return true
	}
	return false
}

// Start starts the HTTP server (blocks until shutdown).
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Stop gracefully shuts down the server using the given context.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
