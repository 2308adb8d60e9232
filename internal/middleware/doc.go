// Package middleware provides gin middleware for the resource API.
//
//   - RequestID: X-Request-ID propagation and generation
//   - Logging: structured access logging
//   - Recovery: panic recovery with a JSON 500 response
//   - RateLimit: global or per-client token buckets
//   - Metrics: Prometheus request metrics
//   - Tracing: OpenTelemetry server spans
//
// Usage:
//
//	r := gin.New()
//	r.Use(
//	    middleware.RequestID(),
//	    middleware.Recovery(logger),
//	    middleware.Logging(logger, "/healthz", "/metrics"),
//	    middleware.Metrics(metrics),
//	)
package middleware
