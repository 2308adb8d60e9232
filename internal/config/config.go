package config

import "time"

// Cache read modes.
const (
	CacheModeBlocking             = "blocking"
	CacheModeStaleWhileRevalidate = "stale-while-revalidate"
)

// Store backends.
const (
	StoreBackendMemory = "memory"
	StoreBackendFile   = "file"
	StoreBackendRedis  = "redis"
)

// Defaults. Stale time and expiry mirror the usual query-cache defaults
// (five and ten minutes) and are only defaults.
const (
	DefaultServerAddress   = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultStaleTime       = 5 * time.Minute
	DefaultExpiry          = 10 * time.Minute
	DefaultFetchTimeout    = 30 * time.Second
	DefaultJanitorInterval = time.Minute

	DefaultRetryMaxRetries     = 3
	DefaultRetryInitialBackoff = 100 * time.Millisecond
	DefaultRetryMaxBackoff     = 5 * time.Second

	DefaultClientBaseURL  = "http://localhost:8080"
	DefaultClientTimeout  = 10 * time.Second
	DefaultBreakerTimeout = 30 * time.Second
	DefaultBreakerLimit   = 5

	DefaultRateLimitRPS   = 50
	DefaultRateLimitBurst = 100

	DefaultStorePath = "store-storage.json"
	DefaultStoreKey  = "store-storage"

	DefaultMetricsPath = "/metrics"
	DefaultServiceName = "resourcesync"
)

// Config is the root configuration document.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit" json:"rateLimit"`
	Cache         CacheConfig         `yaml:"cache" json:"cache"`
	Client        ClientConfig        `yaml:"client" json:"client"`
	Store         StoreConfig         `yaml:"store" json:"store"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig configures the resource API server.
type ServerConfig struct {
	Address         string   `yaml:"address,omitempty" json:"address,omitempty"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// CacheReads serves repository reads through the query cache
	// configured in the cache section.
	CacheReads bool `yaml:"cacheReads,omitempty" json:"cacheReads,omitempty"`
}

// RateLimitConfig configures request rate limiting on the API.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond,omitempty" json:"requestsPerSecond,omitempty"`
	Burst             int  `yaml:"burst,omitempty" json:"burst,omitempty"`
	PerClient         bool `yaml:"perClient,omitempty" json:"perClient,omitempty"`
}

// CacheConfig configures the client-side resource cache.
type CacheConfig struct {
	// StaleTime is how long a fetched entry is served without refetching.
	StaleTime Duration `yaml:"staleTime,omitempty" json:"staleTime,omitempty"`

	// Expiry is how long after a fetch an entry may be served at all.
	// Must not be shorter than StaleTime.
	Expiry Duration `yaml:"expiry,omitempty" json:"expiry,omitempty"`

	// FetchTimeout bounds a single shared fetch, independently of the
	// contexts of the callers waiting on it.
	FetchTimeout Duration `yaml:"fetchTimeout,omitempty" json:"fetchTimeout,omitempty"`

	// JanitorInterval is how often expired entries are swept.
	JanitorInterval Duration `yaml:"janitorInterval,omitempty" json:"janitorInterval,omitempty"`

	// Mode is the default read mode: "blocking" or "stale-while-revalidate".
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// RetryConfig configures retries of failed fetches.
type RetryConfig struct {
	MaxRetries     int      `yaml:"maxRetries" json:"maxRetries"`
	InitialBackoff Duration `yaml:"initialBackoff,omitempty" json:"initialBackoff,omitempty"`
	MaxBackoff     Duration `yaml:"maxBackoff,omitempty" json:"maxBackoff,omitempty"`
}

// ClientConfig configures the HTTP resource client.
type ClientConfig struct {
	BaseURL        string                `yaml:"baseURL,omitempty" json:"baseURL,omitempty"`
	Timeout        Duration              `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig configures the client's circuit breaker.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Threshold int      `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// StoreConfig configures persistence of the client item store.
type StoreConfig struct {
	Backend string            `yaml:"backend,omitempty" json:"backend,omitempty"`
	Path    string            `yaml:"path,omitempty" json:"path,omitempty"`
	Redis   *RedisStoreConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisStoreConfig configures the Redis store backend.
type RedisStoreConfig struct {
	// URL format: redis://[user:password@]host:port[/db]
	URL string `yaml:"url" json:"url"`
	Key string `yaml:"key,omitempty" json:"key,omitempty"`
}

// ObservabilityConfig groups logging, metrics and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	setDuration(&c.Server.ReadTimeout, DefaultReadTimeout)
	setDuration(&c.Server.WriteTimeout, DefaultWriteTimeout)
	setDuration(&c.Server.ShutdownTimeout, DefaultShutdownTimeout)

	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = DefaultRateLimitBurst
	}

	setDuration(&c.Cache.StaleTime, DefaultStaleTime)
	setDuration(&c.Cache.Expiry, DefaultExpiry)
	setDuration(&c.Cache.FetchTimeout, DefaultFetchTimeout)
	setDuration(&c.Cache.JanitorInterval, DefaultJanitorInterval)
	if c.Cache.Mode == "" {
		c.Cache.Mode = CacheModeBlocking
	}
	if c.Cache.Retry == nil {
		c.Cache.Retry = &RetryConfig{MaxRetries: DefaultRetryMaxRetries}
	}
	setDuration(&c.Cache.Retry.InitialBackoff, DefaultRetryInitialBackoff)
	setDuration(&c.Cache.Retry.MaxBackoff, DefaultRetryMaxBackoff)

	if c.Client.BaseURL == "" {
		c.Client.BaseURL = DefaultClientBaseURL
	}
	setDuration(&c.Client.Timeout, DefaultClientTimeout)
	if c.Client.CircuitBreaker != nil {
		if c.Client.CircuitBreaker.Threshold <= 0 {
			c.Client.CircuitBreaker.Threshold = DefaultBreakerLimit
		}
		setDuration(&c.Client.CircuitBreaker.Timeout, DefaultBreakerTimeout)
	}

	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendMemory
	}
	if c.Store.Backend == StoreBackendFile && c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.Redis != nil && c.Store.Redis.Key == "" {
		c.Store.Redis.Key = DefaultStoreKey
	}

	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "json"
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = DefaultMetricsPath
	}
	if c.Observability.Tracing.ServiceName == "" {
		c.Observability.Tracing.ServiceName = DefaultServiceName
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d <= 0 {
		*d = Duration(def)
	}
}
