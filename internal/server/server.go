// Package server exposes whitelist generation over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"ngxwhitelist/internal/auth"
	"ngxwhitelist/internal/history"
	"ngxwhitelist/internal/metrics"
	"ngxwhitelist/internal/pipeline"
	"ngxwhitelist/internal/whitelist"
)

// HealthCheck probes a dependency; a non-nil error marks the service
// degraded.
type HealthCheck func(ctx context.Context) error

type Server struct {
	Pipeline *pipeline.Pipeline
	History  *history.Store
	Metrics  *metrics.Registry
	Logger   *slog.Logger

	// Secret signs API bearer tokens.
	Secret string
	// Defaults fill fields the request leaves unset.
	Defaults whitelist.Options
	// DefaultSource is used when a request carries no config text.
	DefaultSource func() ([]byte, error)
	// AllowInstall lets API callers install and reload.
	AllowInstall bool
	Checks       map[string]HealthCheck
	// RateLimit caps requests per client IP per minute. Zero means 60.
	RateLimit int
}

// App builds the fiber application.
func (s *Server) App() *fiber.App {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	app.Use(recover.New())
	app.Use(accessLog(s.Logger))
	if s.Metrics != nil {
		app.Use(s.Metrics.Middleware())
		app.Get("/metrics", s.Metrics.Handler())
	}

	app.Get("/healthz", s.healthz)

	max := s.RateLimit
	if max <= 0 {
		max = 60
	}
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}), auth.BearerMiddleware(s.Secret))

	api.Post("/generate", auth.RequireScope(auth.ScopeGenerate), s.generate)
	api.Get("/runs", auth.RequireScope(auth.ScopeRead), s.listRuns)
	api.Get("/runs/:id", auth.RequireScope(auth.ScopeRead), s.getRun)

	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.Logger.Error("http_error", slog.String("path", c.Path()), slog.Any("err", err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func accessLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		logger.Info("http_request",
			slog.String("method", c.Method()),
			slog.String("path", sanitizeLogInput(c.Path())),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", c.IP()),
		)
		return err
	}
}
