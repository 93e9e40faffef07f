// Package mgmt is the management API server used in watch mode: liveness,
// the latest run summary, and Prometheus metrics.
package mgmt

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/repo-maintainer/internal/health"
	"github.com/p-blackswan/repo-maintainer/internal/metrics"
	"github.com/p-blackswan/repo-maintainer/internal/workflow"
)

// Collector exposes the metrics surface the server publishes.
type Collector interface {
	Handler() http.Handler
	Summarize() metrics.Summary
}

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr string
}

// Server is the management API Fiber application.
type Server struct {
	app       *fiber.App
	collector Collector
	checker   *health.Checker
	logger    zerolog.Logger
	config    ServerConfig
	startTime time.Time

	mu        sync.RWMutex
	latestRun *workflow.Result
}

// NewServer creates and configures a new management API server.
func NewServer(cfg ServerConfig, collector Collector, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:       app,
		collector: collector,
		checker:   health.NewChecker(logger),
		logger:    logger.With().Str("component", "mgmt_server").Logger(),
		config:    cfg,
		startTime: time.Now(),
	}

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	s.setupRoutes()

	return s
}

// RegisterCheck adds a named dependency check to the readiness endpoint.
func (s *Server) RegisterCheck(name string, fn health.CheckFunc) {
	s.checker.Register(name, fn)
}

// SetLatestRun publishes the most recent run result for /api/v1/summary.
func (s *Server) SetLatestRun(result *workflow.Result) {
	s.mu.Lock()
	s.latestRun = result
	s.mu.Unlock()
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.liveness)
	s.app.Get("/readyz", s.readiness)

	if s.collector != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.collector.Handler()))
	}

	v1 := s.app.Group("/api/v1")
	v1.Get("/summary", s.runSummary)
	if s.collector != nil {
		v1.Get("/metrics/summary", s.metricsSummary)
	}
}

func (s *Server) liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) readiness(c *fiber.Ctx) error {
	results := s.checker.RunAll(c.UserContext())

	ready := true
	for _, status := range results {
		if status == health.StatusDown {
			ready = false
			break
		}
	}

	body := fiber.Map{"checks": results}
	if !ready {
		body["status"] = "not_ready"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	body["status"] = "ready"
	return c.JSON(body)
}

func (s *Server) runSummary(c *fiber.Ctx) error {
	s.mu.RLock()
	latest := s.latestRun
	s.mu.RUnlock()

	if latest == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"no_runs", "Not Found",
			"No maintenance run has completed yet")
	}
	return c.JSON(latest)
}

func (s *Server) metricsSummary(c *fiber.Ctx) error {
	return c.JSON(s.collector.Summarize())
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}
	s.logger.Info().Str("addr", addr).Msg("management API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("management API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// ProblemDetail is an RFC 7807 style error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}
		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
