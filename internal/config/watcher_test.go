package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/resourcesync/internal/observability"
)

// writeConfig replaces path atomically, the way editors save files.
func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestNewWatcher(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	w, err := NewWatcher(path, nil,
		WithDebounceDelay(time.Second),
		WithLogger(observability.NopLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })

	assert.Equal(t, path, w.path)
	assert.Equal(t, time.Second, w.debounceDelay)
	assert.Nil(t, w.Current())
}

func TestWatcher_StartFailsOnInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "cache:\n  mode: never\n")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })

	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "cache:\n  staleTime: 1m\n  expiry: 2m\n")

	reloaded := make(chan *Config, 4)
	var failures atomic.Int32
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg },
		WithDebounceDelay(20*time.Millisecond),
		WithErrorCallback(func(error) { failures.Add(1) }),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	assert.Equal(t, time.Minute, w.Current().Cache.StaleTime.Duration())

	writeConfig(t, path, "cache:\n  staleTime: 3m\n  expiry: 6m\n")

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 3*time.Minute, cfg.Cache.StaleTime.Duration())
		assert.Equal(t, 6*time.Minute, cfg.Cache.Expiry.Duration())
	case <-time.After(5 * time.Second):
		t.Fatal("configuration was not reloaded")
	}
	assert.Equal(t, 3*time.Minute, w.Current().Cache.StaleTime.Duration())

	// An invalid file is rejected and the last good configuration stays.
	writeConfig(t, path, "cache:\n  staleTime: 1h\n  expiry: 1m\n")
	require.Eventually(t, func() bool { return failures.Load() > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3*time.Minute, w.Current().Cache.StaleTime.Duration())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
