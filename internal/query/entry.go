package query

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/retry"
)

// Entry is a cached fetch result.
type Entry struct {
	Key       Key
	Value     any
	FetchedAt time.Time

	// StaleAt is when the entry stops being fresh. A stale entry is still
	// servable until ExpiresAt.
	StaleAt time.Time

	// ExpiresAt is when the entry must no longer be served.
	ExpiresAt time.Time

	// Invalidated is set by Invalidate and by successful writes.
	Invalidated bool
}

// IsStale reports whether the entry should be refetched at now.
func (e *Entry) IsStale(now time.Time) bool {
	return e.Invalidated || !now.Before(e.StaleAt)
}

// IsExpired reports whether the entry must not be served at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Mode selects how a read treats a stale entry.
type Mode int

const (
	// ModeDefault uses the client's policy.
	ModeDefault Mode = iota

	// ModeBlocking refetches stale entries and waits for the result.
	ModeBlocking

	// ModeStaleWhileRevalidate returns stale entries at once and refetches
	// them in the background.
	ModeStaleWhileRevalidate
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBlocking:
		return config.CacheModeBlocking
	case ModeStaleWhileRevalidate:
		return config.CacheModeStaleWhileRevalidate
	default:
		return "default"
	}
}

// ParseMode parses a configuration mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", config.CacheModeBlocking:
		return ModeBlocking, nil
	case config.CacheModeStaleWhileRevalidate, "swr":
		return ModeStaleWhileRevalidate, nil
	default:
		return ModeDefault, fmt.Errorf("unknown cache mode %q", s)
	}
}

// Policy holds the client-wide defaults for reads.
type Policy struct {
	StaleTime    time.Duration
	Expiry       time.Duration
	FetchTimeout time.Duration
	Mode         Mode
	Retry        *retry.Config
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		StaleTime:    config.DefaultStaleTime,
		Expiry:       config.DefaultExpiry,
		FetchTimeout: config.DefaultFetchTimeout,
		Mode:         ModeBlocking,
		Retry: &retry.Config{
			MaxRetries:     config.DefaultRetryMaxRetries,
			InitialBackoff: config.DefaultRetryInitialBackoff,
			MaxBackoff:     config.DefaultRetryMaxBackoff,
		},
	}
}

// PolicyFromConfig converts cache configuration into a Policy. cfg is
// expected to have passed config.Validate.
func PolicyFromConfig(cfg config.CacheConfig) Policy {
	p := DefaultPolicy()
	p.StaleTime = cfg.StaleTime.OrDefault(p.StaleTime)
	p.Expiry = cfg.Expiry.OrDefault(p.Expiry)
	p.FetchTimeout = cfg.FetchTimeout.OrDefault(p.FetchTimeout)
	if mode, err := ParseMode(cfg.Mode); err == nil {
		p.Mode = mode
	}
	if cfg.Retry != nil {
		p.Retry = &retry.Config{
			MaxRetries:     cfg.Retry.MaxRetries,
			InitialBackoff: cfg.Retry.InitialBackoff.Duration(),
			MaxBackoff:     cfg.Retry.MaxBackoff.Duration(),
		}
	}
	return p
}

// normalize fills zero fields from the defaults and keeps Expiry >= StaleTime.
func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.StaleTime <= 0 {
		p.StaleTime = def.StaleTime
	}
	if p.Expiry <= 0 {
		p.Expiry = def.Expiry
	}
	if p.Expiry < p.StaleTime {
		p.Expiry = p.StaleTime
	}
	if p.FetchTimeout <= 0 {
		p.FetchTimeout = def.FetchTimeout
	}
	if p.Mode == ModeDefault {
		p.Mode = ModeBlocking
	}
	return p
}

// ReadOptions override the policy for a single read.
type ReadOptions struct {
	Mode Mode

	// StaleTime and Expiry apply to the entry stored by this read's fetch.
	// Zero means the policy value.
	StaleTime time.Duration
	Expiry    time.Duration

	// Fetch replaces the client's fetch function for this key.
	Fetch FetchFunc
}

func (o ReadOptions) resolve(p Policy) ReadOptions {
	if o.Mode == ModeDefault {
		o.Mode = p.Mode
	}
	if o.StaleTime <= 0 {
		o.StaleTime = p.StaleTime
	}
	if o.Expiry <= 0 {
		o.Expiry = p.Expiry
	}
	if o.Expiry < o.StaleTime {
		o.Expiry = o.StaleTime
	}
	return o
}

// Result is the outcome of a successful read.
type Result struct {
	Value     any
	FetchedAt time.Time

	// Stale is set when a stale value was served under
	// ModeStaleWhileRevalidate.
	Stale bool

	// Fetched is set when the read waited on a fetch.
	Fetched bool

	// Shared is set when that fetch was shared with other readers.
	Shared bool
}
