package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantPaths []string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name: "expiry shorter than stale time",
			mutate: func(c *Config) {
				c.Cache.StaleTime = Duration(time.Hour)
				c.Cache.Expiry = Duration(time.Minute)
			},
			wantPaths: []string{"cache.expiry"},
		},
		{
			name:      "unknown mode",
			mutate:    func(c *Config) { c.Cache.Mode = "eventually" },
			wantPaths: []string{"cache.mode"},
		},
		{
			name:      "negative retries",
			mutate:    func(c *Config) { c.Cache.Retry.MaxRetries = -1 },
			wantPaths: []string{"cache.retry.maxRetries"},
		},
		{
			name:      "relative base URL",
			mutate:    func(c *Config) { c.Client.BaseURL = "/api" },
			wantPaths: []string{"client.baseURL"},
		},
		{
			name:      "redis backend without url",
			mutate:    func(c *Config) { c.Store.Backend = StoreBackendRedis },
			wantPaths: []string{"store.redis.url"},
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Store.Backend = "etcd" },
			wantPaths: []string{"store.backend"},
		},
		{
			name:      "sampling rate out of range",
			mutate:    func(c *Config) { c.Observability.Tracing.SamplingRate = 1.5 },
			wantPaths: []string{"observability.tracing.samplingRate"},
		},
		{
			name: "several problems",
			mutate: func(c *Config) {
				c.Cache.Mode = "x"
				c.Store.Backend = "y"
			},
			wantPaths: []string{"cache.mode", "store.backend"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if len(tt.wantPaths) == 0 {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			paths := make([]string, 0, len(verrs))
			for _, e := range verrs {
				paths = append(paths, e.Path)
			}
			assert.Equal(t, tt.wantPaths, paths)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	t.Parallel()
	assert.EqualError(t, Validate(nil), "configuration is nil")
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	assert.Equal(t, "a: bad", ValidationErrors{{Path: "a", Message: "bad"}}.Error())
	assert.Equal(t, "2 validation errors:\n  1. a: bad\n  2. worse\n",
		ValidationErrors{{Path: "a", Message: "bad"}, {Message: "worse"}}.Error())
}
