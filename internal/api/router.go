package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/resourcesync/internal/health"
	"github.com/vyrodovalexey/resourcesync/internal/middleware"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
	"github.com/vyrodovalexey/resourcesync/internal/resource"
)

// RouterConfig wires the router's collaborators. Only Repository is
// required.
type RouterConfig struct {
	Repository resource.Repository
	Logger     observability.Logger

	// Metrics enables request metrics and serves them on MetricsPath.
	Metrics     *observability.Metrics
	MetricsPath string

	// RateLimit is applied to the resource routes only.
	RateLimit gin.HandlerFunc

	// Health serves /healthz and /readyz. A handler without checks is
	// used when nil.
	Health *health.Handler

	Tracing bool
}

// NewRouter builds the gin engine for the resource API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	if cfg.Health == nil {
		cfg.Health = health.NewHandler(cfg.Logger, 0)
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	if cfg.Tracing {
		r.Use(middleware.Tracing())
	}
	r.Use(
		middleware.Recovery(cfg.Logger),
		middleware.Logging(cfg.Logger, "/healthz", "/readyz", cfg.MetricsPath),
	)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
		r.GET(cfg.MetricsPath, gin.WrapH(cfg.Metrics.Handler()))
	}

	cfg.Health.RegisterRoutes(r)

	api := r.Group("")
	if cfg.RateLimit != nil {
		api.Use(cfg.RateLimit)
	}
	NewHandler(cfg.Repository, cfg.Logger).RegisterRoutes(api)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
	})

	return r
}
