package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/JefferySJones/pullrequestpeon/internal/announce"
	"github.com/JefferySJones/pullrequestpeon/internal/event"
	"github.com/JefferySJones/pullrequestpeon/internal/reconcile"
)

// Reconciler runs one pull request event against its branch thread.
type Reconciler interface {
	Reconcile(ctx context.Context, ev event.PullRequestEvent) (reconcile.Outcome, error)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Reconciler Reconciler
	// Announcer is optional; without it merged pull requests are acknowledged only.
	Announcer          announce.Announcer
	Store              Pinger
	GitHubSecret       string
	SlackSigningSecret string
}

// Server represents the HTTP server
type Server struct {
	echo *echo.Echo
	port int
	deps Deps
}

// NewServer creates a new HTTP server
func NewServer(port int, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(requestLogger())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("2M"))

	server := &Server{
		echo: e,
		port: port,
		deps: deps,
	}

	server.setupRoutes()

	return server
}

// Echo exposes the router, mainly for tests and embedding.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// setupRoutes configures all endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Healthy")
	})
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})
	s.echo.GET("/ready", s.handleReady)

	s.echo.POST("/webhooks/github", s.handleGitHubWebhook)
	s.echo.POST("/slack/interactive", s.handleSlackInteraction)
}

func (s *Server) handleReady(c echo.Context) error {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("readiness check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("starting HTTP server")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down HTTP server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
