package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/health"
	"github.com/vyrodovalexey/resourcesync/internal/store"
)

const doctorTimeout = 5 * time.Second

// errUnhealthy is returned when a doctor check fails.
var errUnhealthy = errors.New("one or more checks failed")

// doctor checks the resource API and, for the redis backend, the store.
func (e *env) doctor(ctx context.Context, _ []string) error {
	h := health.NewHandler(e.logger, doctorTimeout)
	h.AddCheck(health.HTTPHealthCheck("api",
		strings.TrimRight(e.cfg.Client.BaseURL, "/")+"/readyz", doctorTimeout))

	if e.cfg.Store.Backend == config.StoreBackendRedis {
		p, err := store.NewPersister(ctx, e.cfg.Store, e.logger)
		if err != nil {
			h.AddCheck(health.NewHealthCheckFunc("store", func(context.Context) error { return err }))
		} else {
			defer func() { _ = p.Close() }()
			if rp, ok := p.(*store.RedisPersister); ok {
				h.AddCheck(health.RedisHealthCheck("store", rp.Client()))
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	status := h.Run(ctx)
	if err := e.printJSON(status); err != nil {
		return err
	}
	if status.Status != health.StatusOK {
		return errUnhealthy
	}
	return nil
}
