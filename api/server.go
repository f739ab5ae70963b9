package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CristiGvl/picoGPUMon/internal/gpu/nvidia"
	"github.com/CristiGvl/picoGPUMon/internal/observability"
	"github.com/CristiGvl/picoGPUMon/internal/platform"
	"github.com/CristiGvl/picoGPUMon/internal/telemetry"
)

// NVMLReporter exposes the NVIDIA backend state for the health endpoint.
type NVMLReporter interface {
	Info() nvidia.Info
}

// Config carries the components the server reads from.
type Config struct {
	Service    *telemetry.Service
	Poller     *telemetry.Poller
	Metrics    *observability.Metrics
	NVML       NVMLReporter
	InstanceID string
	Version    string
	// AccessLog enables the request logger middleware.
	AccessLog bool
}

// Server represents the API server
type Server struct {
	app        *fiber.App
	service    *telemetry.Service
	poller     *telemetry.Poller
	metrics    *observability.Metrics
	nvml       NVMLReporter
	instanceID string
	version    string
	started    time.Time
}

// NewServer creates a new API server
func NewServer(cfg Config) (*Server, error) {
	// Validate platform support
	if err := platform.ValidateSupport(); err != nil {
		return nil, err
	}
	if cfg.Service == nil || cfg.Poller == nil {
		return nil, errors.New("api: service and poller are required")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "picoGPUMon",
		AppName:               "picoGPUMonitor " + cfg.Version,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "*",
		AllowCredentials: false,
		ExposeHeaders:    "Content-Length,Content-Type,Access-Control-Allow-Origin",
		MaxAge:           86400, // 24 hours
	}))

	server := &Server{
		app:        app,
		service:    cfg.Service,
		poller:     cfg.Poller,
		metrics:    cfg.Metrics,
		nvml:       cfg.NVML,
		instanceID: cfg.InstanceID,
		version:    cfg.Version,
		started:    time.Now(),
	}

	server.setupRoutes()
	return server, nil
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.app.Group("/api")

	// GPU telemetry endpoints
	api.Get("/gpu", s.getGPUs)
	api.Get("/gpu/primary", s.getPrimaryGPU)
	api.Get("/gpu/:id/stats", s.getGPUStats)
	api.Get("/gpu/:id/extended", s.getGPUExtended)
	api.Post("/gpu/rescan", s.rescanGPUs)

	// Health check
	api.Get("/health", s.healthCheck)

	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}
}

// Start starts the API server
func (s *Server) Start(address string) error {
	return s.app.Listen(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
