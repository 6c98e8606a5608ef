package api

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/example/chat-broker/modules/broker"
	"github.com/example/chat-broker/modules/directory"
	"github.com/example/chat-broker/modules/identity"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisstorage "github.com/gofiber/storage/redis/v3"
)

// APIModule serves the websocket endpoints and the account HTTP API.
type APIModule struct {
	app       *fiber.App
	directory directory.DirectoryPort
	identity  identity.IdentityPort
	validator *broker.Validator
	broker    *broker.Broker
	limits    fiber.Storage
	logger    *slog.Logger
	port      string
	redisAddr string
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule() *APIModule {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	return &APIModule{
		port:      port,
		redisAddr: os.Getenv("REDIS_ADDR"),
		logger:    slog.Default().With("module", "api"),
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"directory", "identity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "directory":
		m.directory = directory.NewDirectoryAdapter(container)
	case "identity":
		m.identity = identity.NewIdentityAdapter(container)
	}
}

// SetBroker sets the connection broker (called from main.go).
func (m *APIModule) SetBroker(b *broker.Broker) {
	m.broker = b
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.directory == nil {
		return fmt.Errorf("directory adapter dependency not set")
	}
	if m.identity == nil {
		return fmt.Errorf("identity adapter dependency not set")
	}
	if m.broker == nil {
		return fmt.Errorf("broker dependency not set")
	}

	if m.redisAddr != "" {
		host, port := parseRedisAddr(m.redisAddr)
		m.limits = redisstorage.New(redisstorage.Config{
			Host:     host,
			Port:     port,
			PoolSize: 10,
		})
		log.Printf("[api] Rate limits stored in Redis at %s", m.redisAddr)
	}

	app := m.newApp()

	// Start server in goroutine
	go func() {
		if err := app.Listen(":" + m.port); err != nil {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()

	log.Printf("[api] HTTP server started on :%s", m.port)
	return nil
}

// newApp builds the Fiber application with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	m.validator = broker.NewValidator(m.directory)
	m.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	m.app.Use(recover.New())
	m.app.Use(loggerMiddleware())

	m.setupRoutes()
	return m.app
}

// Stop closes every websocket connection, then shuts down the HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	if m.broker != nil {
		closed := m.broker.Shutdown(ctx)
		log.Printf("[api] Closed %d websocket connections", closed)
	}
	err := m.app.ShutdownWithContext(ctx)
	if m.limits != nil {
		if cerr := m.limits.Close(); cerr != nil {
			log.Printf("[api] Error closing rate limit storage: %v", cerr)
		}
	}
	return err
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{
		"port": m.port,
	}
	if m.broker != nil {
		details["connections"] = m.broker.Registry().ConnectionCount()
		details["groups"] = m.broker.Registry().GroupCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// customErrorHandler handles Fiber errors without leaking internal detail.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		log.Printf("[api] %s %s failed: %v", c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   errorCode(code),
		Message: message,
	})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "invalid_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	case fiber.StatusUpgradeRequired:
		return "upgrade_required"
	default:
		return "server_error"
	}
}

// loggerMiddleware returns a Fiber middleware for request logging.
func loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip logging for WebSocket upgrade requests
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		err := c.Next()
		log.Printf("[api] %s %s %d", c.Method(), c.Path(), c.Response().StatusCode())
		return err
	}
}

// parseRedisAddr splits host:port, falling back to the Redis defaults.
func parseRedisAddr(addr string) (string, int) {
	const defaultHost = "127.0.0.1"
	const defaultPort = 6379

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	if host == "" {
		host = defaultHost
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = defaultPort
	}
	return host, port
}
