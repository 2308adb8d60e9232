package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError is a single configuration problem.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// Validate checks cfg and returns ValidationErrors listing every problem,
// or nil. Defaults are expected to be applied already.
func Validate(cfg *Config) error {
	if cfg == nil {
		return ValidationErrors{{Message: "configuration is nil"}}
	}

	var errs ValidationErrors
	add := func(path, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Cache.Expiry < cfg.Cache.StaleTime {
		add("cache.expiry", "must not be shorter than cache.staleTime (%s < %s)",
			cfg.Cache.Expiry.Duration(), cfg.Cache.StaleTime.Duration())
	}
	switch cfg.Cache.Mode {
	case CacheModeBlocking, CacheModeStaleWhileRevalidate:
	default:
		add("cache.mode", "unknown mode %q", cfg.Cache.Mode)
	}
	if cfg.Cache.Retry != nil && cfg.Cache.Retry.MaxRetries < 0 {
		add("cache.retry.maxRetries", "must not be negative")
	}

	if u, err := url.Parse(cfg.Client.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("client.baseURL", "must be an absolute URL, got %q", cfg.Client.BaseURL)
	}

	switch cfg.Store.Backend {
	case StoreBackendMemory, StoreBackendFile:
	case StoreBackendRedis:
		if cfg.Store.Redis == nil || cfg.Store.Redis.URL == "" {
			add("store.redis.url", "is required for the redis backend")
		}
	default:
		add("store.backend", "unknown backend %q", cfg.Store.Backend)
	}

	if r := cfg.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		add("observability.tracing.samplingRate", "must be between 0 and 1")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
