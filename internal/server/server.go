// Package server exposes the HTTP query surface of the monitoring engine.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"

	_ "github.com/mr-karan/slawatch/docs"
	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/internal/monitor"
)

// SettingsWriter persists runtime settings.
type SettingsWriter interface {
	SaveSettings(ctx context.Context, settings map[string]string) error
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Config    *config.Config
	Engine    *monitor.Engine
	Scheduler *monitor.Scheduler
	// Settings is optional; without it configuration updates are not persisted.
	Settings SettingsWriter
	Logger   *slog.Logger
	Version  string
}

// Server is the fiber application serving the query API.
type Server struct {
	app       *fiber.App
	config    *config.Config
	engine    *monitor.Engine
	scheduler *monitor.Scheduler
	settings  SettingsWriter
	log       *slog.Logger
	version   string
	startedAt time.Time

	// configMu serializes runtime configuration updates.
	configMu sync.Mutex
}

// New creates a Server and registers its routes.
func New(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "slawatch",
		ReadTimeout:           opts.Config.Server.ReadTimeout,
		WriteTimeout:          opts.Config.Server.WriteTimeout,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:       app,
		config:    opts.Config,
		engine:    opts.Engine,
		scheduler: opts.Scheduler,
		settings:  opts.Settings,
		log:       logger.With("component", "server"),
		version:   opts.Version,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger)

	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", s.handleMetrics)
	s.app.Get("/swagger/*", swagger.HandlerDefault)

	api := s.app.Group("/api/v1")
	api.Get("/alerts", s.handleListAlerts)
	api.Get("/alerts/:id/deliveries", s.handleListAlertDeliveries)
	api.Get("/scheduler/status", s.handleSchedulerStatus)
	api.Post("/scheduler/trigger", s.handleTriggerCycle)
	api.Get("/config", s.handleGetConfig)
	api.Put("/config", s.handleUpdateConfig)
	api.Get("/deliveries/stats", s.handleDeliveryStats)
	api.Get("/deliveries/queue", s.handleRetryQueue)
	api.Get("/suppressions", s.handleListSuppressions)
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start))
	return err
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info("starting http server", "address", s.config.Server.Address)
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
