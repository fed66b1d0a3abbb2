// routes.go - Route registration helpers
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kilonova-lab/specconv/internal/parser"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Converter Converter
	// Ledger is nil when the catalog is disabled.
	Ledger    Ledger
	OutputDir string
	Policy    parser.WavelengthPolicy
	Version   string
	Logger    *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Spectrum SpectrumHandler
	Events   *EventHub
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := NewEventHub(deps.Converter, deps.OutputDir, logger)
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Converter.Format()),
		Spectrum: NewSpectrumHandler(deps.Converter, deps.Ledger, events, deps.OutputDir, deps.Policy),
		Events:   events,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.POST("/inspect", handlers.Spectrum.HandleInspect)
	apiGroup.POST("/convert", handlers.Spectrum.HandleConvert)
	apiGroup.GET("/conversions", handlers.Spectrum.HandleListConversions)
	apiGroup.GET("/ws", handlers.Events.HandleWebSocket)
}

// MiddlewareConfig tunes the common middleware
type MiddlewareConfig struct {
	BodyLimit      string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	e.HTTPErrorHandler = NewErrorHandler(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/api/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: cfg.RequestTimeout,
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Request().URL.Path, "/ws")
			},
			ErrorMessage: "Request timeout - conversion took too long",
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
}
