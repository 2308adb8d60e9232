package resource

import (
	"context"
	"errors"
	"strconv"

	"github.com/vyrodovalexey/resourcesync/internal/query"
)

// CachedRepository serves reads of another Repository through a
// query.Client. Creates go straight to the wrapped repository and mark the
// cached lists stale.
type CachedRepository struct {
	next  Repository
	cache *query.Client
}

// NewCachedRepository wraps next. The cache's own fetch function is not
// used.
func NewCachedRepository(next Repository, cache *query.Client) *CachedRepository {
	return &CachedRepository{
		next:  next,
		cache: cache,
	}
}

type listPage struct {
	items []Resource
	total int
}

// List implements Repository.
func (r *CachedRepository) List(ctx context.Context, params ListParams) ([]Resource, int, error) {
	params = params.Normalize()
	key := query.KeyWith(TagList,
		"page", strconv.Itoa(params.Page),
		"limit", strconv.Itoa(params.Limit),
	)

	res, err := r.cache.Read(ctx, key, query.ReadOptions{
		Fetch: func(ctx context.Context, _ query.Key) (any, error) {
			items, total, err := r.next.List(ctx, params)
			if err != nil {
				return nil, err
			}
			return listPage{items: items, total: total}, nil
		},
	})
	if err != nil {
		return nil, 0, err
	}

	page := res.Value.(listPage)
	out := make([]Resource, len(page.items))
	copy(out, page.items)
	return out, page.total, nil
}

// Get implements Repository.
func (r *CachedRepository) Get(ctx context.Context, id string) (Resource, error) {
	res, err := r.cache.Read(ctx, query.KeyWith(TagItem, "id", id), query.ReadOptions{
		Fetch: func(ctx context.Context, _ query.Key) (any, error) {
			v, err := r.next.Get(ctx, id)
			if errors.Is(err, ErrNotFound) {
				return nil, query.Permanent(err)
			}
			if err != nil {
				return nil, err
			}
			return v, nil
		},
	})
	if err != nil {
		return Resource{}, err
	}
	return res.Value.(Resource), nil
}

// Create implements Repository.
func (r *CachedRepository) Create(ctx context.Context, in CreateInput) (Resource, error) {
	v, err := r.cache.Write(ctx, []string{TagList}, func(ctx context.Context) (any, error) {
		return r.next.Create(ctx, in)
	})
	if err != nil {
		return Resource{}, err
	}
	return v.(Resource), nil
}
