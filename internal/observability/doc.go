// Package observability provides logging, metrics, and tracing for the
// resource service and its clients.
//
// Logging is structured and backed by zap. Loggers are passed explicitly;
// there is no package-level logger. NopLogger is the default everywhere a
// logger is optional.
//
// Metrics are Prometheus collectors registered on a per-process registry
// returned by NewMetrics. Packages that own their own collectors (the
// query cache, for instance) expose MustRegister so they can be attached
// to the same registry that serves /metrics.
//
// Tracing uses OpenTelemetry. NewTracer installs a global provider only
// when tracing is enabled; otherwise spans are no-ops.
package observability
