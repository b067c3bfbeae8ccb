// Package routes assembles the HTTP API
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/entity"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/merge"
	"github.com/Ramsey-B/clover/pkg/routes/resolution"
)

// Engine is everything the HTTP API needs from the resolution engine
type Engine interface {
	resolution.Engine
	merge.Engine
	entity.Engine
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	ServiceName string
	// Tracing toggles the otelecho middleware
	Tracing bool
}

// NewServer builds the echo server with middleware and every route registered
func NewServer(cfg ServerConfig, engine Engine, checker *health.Checker, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = middleware.Error(logger)

	if cfg.Tracing {
		e.Use(otelecho.Middleware(cfg.ServiceName))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	if checker != nil {
		checker.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	resolution.NewHandler(engine, logger).Register(api.Group("/resolutions"))
	merge.NewHandler(engine, logger).Register(api.Group("/merges"))
	entity.NewHandler(engine).Register(api.Group("/entities"))

	return e
}
