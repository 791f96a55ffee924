// Package api exposes the operator-facing HTTP surface: login,
// document upload, extraction status, review, spreadsheet save and
// export downloads.
package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/auth"
	"github.com/gmsas95/docsheet/internal/config"
	"github.com/gmsas95/docsheet/internal/metrics"
	"github.com/gmsas95/docsheet/internal/pipeline"
	"github.com/gmsas95/docsheet/internal/sheets"
	"github.com/gmsas95/docsheet/internal/store"
	"github.com/gmsas95/docsheet/internal/uploads"
)

// Deps carries the wired services the server routes to.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Auth     *auth.Service
	Tokens   *auth.TokenIssuer
	Uploads  *uploads.Service
	Pipeline *pipeline.Pool
	Sheets   sheets.Appender
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Server handles HTTP API and WebSocket
type Server struct {
	app      *fiber.App
	config   *config.Config
	store    *store.Store
	auth     *auth.Service
	tokens   *auth.TokenIssuer
	uploads  *uploads.Service
	pipeline *pipeline.Pool
	sheets   sheets.Appender
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates a new API server
func New(d Deps) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(d.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(d.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    d.Config.Server.BodyLimit,
	})

	s := &Server{
		app:      app,
		config:   d.Config,
		store:    d.Store,
		auth:     d.Auth,
		tokens:   d.Tokens,
		uploads:  d.Uploads,
		pipeline: d.Pipeline,
		sheets:   d.Sheets,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check and scrape endpoint
	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	// API routes
	api := s.app.Group("/api")

	// Public routes
	api.Post("/auth/login", s.handleLogin)
	api.Post("/auth/register", s.handleRegister)

	// Protected routes
	protected := api.Use(s.authMiddleware())

	// Account
	protected.Get("/auth/me", s.handleMe)
	protected.Put("/auth/profile", s.handleUpdateProfile)
	protected.Post("/auth/password", s.handleChangePassword)

	// Documents
	protected.Post("/documents/upload", s.handleUpload)
	protected.Get("/documents", s.handleListDocuments)
	protected.Get("/documents/:id/status", s.handleStatus)
	protected.Get("/documents/:id/image", s.handleImage)
	protected.Post("/documents/:id/save", s.handleSave)

	// Exports
	protected.Get("/export", s.handleExport)

	// Operational metrics snapshot
	protected.Get("/metrics", s.handleMetricsSnapshot)

	// User administration
	admin := protected.Group("/users", s.adminMiddleware())
	admin.Get("/", s.handleListUsers)
	admin.Post("/", s.handleCreateUser)
	admin.Post("/:email/suspend", s.handleSuspendUser)
	admin.Post("/:email/unsuspend", s.handleUnsuspendUser)
	admin.Delete("/:email", s.handleDeleteUser)

	// WebSocket status push
	s.app.Use("/ws", s.wsUpgradeMiddleware())
	s.app.Get("/ws/status", websocket.New(s.handleStatusSocket))
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber instance for tests
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleMetricsSnapshot(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}
