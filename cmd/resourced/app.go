package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/resourcesync/internal/api"
	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/health"
	"github.com/vyrodovalexey/resourcesync/internal/middleware"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
	"github.com/vyrodovalexey/resourcesync/internal/query"
	"github.com/vyrodovalexey/resourcesync/internal/resource"
)

// application holds all application components.
type application struct {
	config      *config.Config
	logger      observability.Logger
	levels      observability.LevelSetter
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	repository  resource.Repository
	cache       *query.Client
	rateLimiter *middleware.RateLimiter
	health      *health.Handler
	handler     http.Handler
	server      *api.Server
}

// initApplication initializes all application components.
func initApplication(
	cfg *config.Config,
	logger observability.Logger,
	levels observability.LevelSetter,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		levels: levels,
	}

	tracer, err := initTracer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	app.tracer = tracer

	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics(config.DefaultServiceName)
		metrics.SetBuildInfo(version, gitCommit)
		app.metrics = metrics
	}

	memory := resource.NewMemoryRepository(resource.WithLogger(logger.Named("repository")))
	app.repository = memory
	if cfg.Server.CacheReads {
		app.cache = query.New(nil,
			query.WithPolicy(query.PolicyFromConfig(cfg.Cache)),
			query.WithJanitorInterval(cfg.Cache.JanitorInterval.Duration()),
			query.WithLogger(logger.Named("query")),
		)
		app.repository = resource.NewCachedRepository(memory, app.cache)
		if metrics != nil {
			query.GetMetrics().MustRegister(metrics.Registry())
			query.GetMetrics().Init(resource.TagList, resource.TagItem)
		}
	}

	app.health = health.NewHandler(logger, 0)
	app.health.AddCheck(health.NewHealthCheckFunc("repository", func(ctx context.Context) error {
		_, _, err := memory.List(ctx, resource.ListParams{Page: 1, Limit: 1})
		return err
	}))

	rateLimit, rl := middleware.RateLimitFromConfig(cfg.RateLimit, logger, metrics)
	app.rateLimiter = rl

	app.handler = api.NewRouter(api.RouterConfig{
		Repository:  app.repository,
		Logger:      logger,
		Metrics:     metrics,
		MetricsPath: cfg.Observability.Metrics.Path,
		RateLimit:   rateLimit,
		Health:      app.health,
		Tracing:     cfg.Observability.Tracing.Enabled,
	})
	app.server = api.NewServer(cfg.Server, app.handler, logger)

	return app, nil
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config) (*observability.Tracer, error) {
	tc := cfg.Observability.Tracing
	return observability.NewTracer(observability.TracerConfig{
		ServiceName:  tc.ServiceName,
		OTLPEndpoint: tc.OTLPEndpoint,
		SamplingRate: tc.SamplingRate,
		Enabled:      tc.Enabled,
	})
}
