package resource

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/resourcesync/internal/observability"
)

// MemoryRepository keeps resources in memory in creation order.
type MemoryRepository struct {
	logger observability.Logger
	now    func() time.Time
	newID  func() string

	mu    sync.RWMutex
	items []Resource
	index map[string]int
}

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithLogger sets the repository logger.
func WithLogger(logger observability.Logger) MemoryOption {
	return func(r *MemoryRepository) {
		r.logger = logger
	}
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(fn func() string) MemoryOption {
	return func(r *MemoryRepository) {
		r.newID = fn
	}
}

// WithClock replaces time.Now for creation timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRepository) {
		r.now = now
	}
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		logger: observability.NopLogger(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		index:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List implements Repository.
func (r *MemoryRepository) List(ctx context.Context, params ListParams) ([]Resource, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	params = params.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.items)
	start := min(params.Offset(), total)
	end := min(start+params.Limit, total)

	page := make([]Resource, end-start)
	copy(page, r.items[start:end])
	return page, total, nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(ctx context.Context, id string) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return Resource{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return Resource{}, ErrNotFound
	}
	return r.items[i], nil
}

// Create implements Repository.
func (r *MemoryRepository) Create(ctx context.Context, in CreateInput) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return Resource{}, err
	}

	res := Resource{
		ID:        r.newID(),
		Name:      in.Name,
		Email:     in.Email,
		CreatedAt: r.now().UTC(),
	}

	r.mu.Lock()
	r.index[res.ID] = len(r.items)
	r.items = append(r.items, res)
	r.mu.Unlock()

	r.logger.Debug("resource created", observability.String("id", res.ID))
	return res, nil
}

// Len returns the number of stored resources.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
