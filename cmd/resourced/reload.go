package main

import (
	"context"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
	"github.com/vyrodovalexey/resourcesync/internal/query"
)

// applyConfig applies the reloadable parts of newCfg: the log level and
// the cache policy. Everything else needs a restart.
func (app *application) applyConfig(newCfg *config.Config) {
	if app.levels != nil {
		if err := app.levels.SetLevel(newCfg.Observability.Logging.Level); err != nil {
			app.logger.Warn("failed to apply log level",
				observability.String("level", newCfg.Observability.Logging.Level),
				observability.Error(err),
			)
		}
	}

	if app.cache != nil {
		app.cache.SetPolicy(query.PolicyFromConfig(newCfg.Cache))
	}

	if newCfg.Server != app.config.Server || newCfg.RateLimit != app.config.RateLimit {
		app.logger.Warn("server and rate limit changes take effect after a restart")
	}

	app.logger.Info("configuration reloaded",
		observability.Duration("stale_time", newCfg.Cache.StaleTime.Duration()),
		observability.Duration("expiry", newCfg.Cache.Expiry.Duration()),
		observability.String("log_level", newCfg.Observability.Logging.Level),
	)
}

// startConfigWatcher starts the configuration watcher.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, app.applyConfig,
		config.WithLogger(logger),
		config.WithErrorCallback(func(err error) {
			logger.Error("configuration reload rejected", observability.Error(err))
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}

	return watcher
}
