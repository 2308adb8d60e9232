package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("resource API unavailable: circuit breaker open")

// breaker wraps gobreaker.CircuitBreaker. Client errors (4xx) and
// cancellations do not count as failures.
type breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

func newBreaker(name string, cfg *config.CircuitBreakerConfig, logger observability.Logger) *breaker {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	b := &breaker{logger: logger}

	threshold := safeIntToUint32(cfg.Threshold)
	if threshold == 0 {
		threshold = config.DefaultBreakerLimit
	}
	timeout := cfg.Timeout.OrDefault(config.DefaultBreakerTimeout)

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: threshold,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
		IsSuccessful: isSuccessful,
	})
	return b
}

func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < http.StatusInternalServerError
	}
	return errors.Is(err, context.Canceled)
}

// execute runs fn through the breaker. A nil breaker runs fn directly.
func execute[T any](b *breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, ErrCircuitOpen
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// state reports the breaker state, "disabled" without a breaker.
func (b *breaker) state() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// requestTimeout is used when the configured client timeout is unset.
func requestTimeout(cfg config.ClientConfig) time.Duration {
	return cfg.Timeout.OrDefault(config.DefaultClientTimeout)
}
