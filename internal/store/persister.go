package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
)

// ErrNoSnapshot is returned by Persister.Load when nothing was saved yet.
var ErrNoSnapshot = errors.New("no stored snapshot")

// Persister loads and saves serialized store snapshots.
type Persister interface {
	// Load returns the last saved snapshot or ErrNoSnapshot.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, data []byte) error

	Close() error
}

// NewPersister creates the persister selected by cfg.Backend.
func NewPersister(ctx context.Context, cfg config.StoreConfig, logger observability.Logger) (Persister, error) {
	switch cfg.Backend {
	case "", config.StoreBackendFile:
		path := cfg.Path
		if path == "" {
			path = config.DefaultStorePath
		}
		return NewFilePersister(path), nil
	case config.StoreBackendRedis:
		if cfg.Redis == nil || cfg.Redis.URL == "" {
			return nil, errors.New("redis URL is required for the redis store backend")
		}
		return NewRedisPersister(ctx, *cfg.Redis, logger)
	case config.StoreBackendMemory:
		return NewMemoryPersister(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// MemoryPersister keeps the snapshot in memory.
type MemoryPersister struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryPersister creates an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// Load implements Persister.
func (m *MemoryPersister) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), m.data...), nil
}

// Save implements Persister.
func (m *MemoryPersister) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

// Close implements Persister.
func (m *MemoryPersister) Close() error { return nil }
