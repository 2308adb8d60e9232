package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
	"github.com/vyrodovalexey/resourcesync/internal/retry"
)

const tracerName = "resourcesync/store"

// redisRetryConfig returns the retry configuration for Redis operations.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError reports whether err looks like a connection
// problem rather than a miss or a cancellation.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// RedisPersister stores the snapshot under a single Redis key.
type RedisPersister struct {
	client redis.UniversalClient
	key    string
	logger observability.Logger
}

// NewRedisPersister connects to cfg.URL and pings it.
func NewRedisPersister(ctx context.Context, cfg config.RedisStoreConfig, logger observability.Logger) (*RedisPersister, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	p := NewRedisPersisterFromClient(client, cfg.Key, logger)
	p.logger.Info("redis store initialized",
		observability.String("addr", opts.Addr),
		observability.Int("db", opts.DB),
		observability.String("key", p.key))
	return p, nil
}

// NewRedisPersisterFromClient wraps an existing client. An empty key
// means config.DefaultStoreKey.
func NewRedisPersisterFromClient(client redis.UniversalClient, key string, logger observability.Logger) *RedisPersister {
	if key == "" {
		key = config.DefaultStoreKey
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisPersister{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Client returns the underlying Redis client.
func (r *RedisPersister) Client() redis.UniversalClient {
	return r.client
}

// Load implements Persister.
func (r *RedisPersister) Load(ctx context.Context) ([]byte, error) {
	ctx, span := r.startSpan(ctx, "store.Load")
	defer span.End()

	data, err := retry.Do(ctx, redisRetryConfig(), func(ctx context.Context) ([]byte, error) {
		return r.client.Get(ctx, r.key).Bytes()
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry:     r.onRetry("get"),
	})
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("store.found", false))
		return nil, ErrNoSnapshot
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		r.logger.Error("redis get failed",
			observability.String("key", r.key),
			observability.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("store.found", true),
		attribute.Int("store.size", len(data)),
	)
	return data, nil
}

// Save implements Persister.
func (r *RedisPersister) Save(ctx context.Context, data []byte) error {
	ctx, span := r.startSpan(ctx, "store.Save", attribute.Int("store.size", len(data)))
	defer span.End()

	_, err := retry.Do(ctx, redisRetryConfig(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.client.Set(ctx, r.key, data, 0).Err()
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry:     r.onRetry("set"),
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		r.logger.Error("redis set failed",
			observability.String("key", r.key),
			observability.Error(err))
		return err
	}
	return nil
}

// Ping checks the connection.
func (r *RedisPersister) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Persister.
func (r *RedisPersister) Close() error {
	return r.client.Close()
}

func (r *RedisPersister) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("store.backend", "redis"),
		attribute.String("store.key", r.key),
	)
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (r *RedisPersister) onRetry(op string) retry.OnRetryFunc {
	return func(attempt int, err error, backoff time.Duration) {
		r.logger.Debug("retrying redis "+op,
			observability.String("key", r.key),
			observability.Int("attempt", attempt),
			observability.Duration("backoff", backoff),
			observability.Error(err))
	}
}
