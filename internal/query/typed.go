package query

import (
	"context"
	"fmt"
	"time"
)

// QueryFunc loads a typed value for key.
type QueryFunc[T any] func(ctx context.Context, key Key) (T, error)

// QueryOption configures a Query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	enabled bool
	read    ReadOptions
}

// WithEnabled enables or disables a query. A disabled query never fetches.
func WithEnabled(enabled bool) QueryOption {
	return func(o *queryOptions) {
		o.enabled = enabled
	}
}

// WithMode overrides the client's mode for this query.
func WithMode(mode Mode) QueryOption {
	return func(o *queryOptions) {
		o.read.Mode = mode
	}
}

// WithStaleTime overrides the client's stale time for this query.
func WithStaleTime(d time.Duration) QueryOption {
	return func(o *queryOptions) {
		o.read.StaleTime = d
	}
}

// WithExpiry overrides the client's expiry for this query.
func WithExpiry(d time.Duration) QueryOption {
	return func(o *queryOptions) {
		o.read.Expiry = d
	}
}

// Query is a typed read of one key through a Client.
type Query[T any] struct {
	client  *Client
	key     Key
	enabled bool
	read    ReadOptions
}

// NewQuery binds key and fetch to client.
func NewQuery[T any](client *Client, key Key, fetch QueryFunc[T], opts ...QueryOption) *Query[T] {
	o := queryOptions{enabled: true}
	for _, opt := range opts {
		opt(&o)
	}

	o.read.Fetch = func(ctx context.Context, k Key) (any, error) {
		return fetch(ctx, k)
	}

	return &Query[T]{
		client:  client,
		key:     NewKey(key.Tag, key.Filters),
		enabled: o.enabled,
		read:    o.read,
	}
}

// Key returns the cache key of the query.
func (q *Query[T]) Key() Key {
	return q.key
}

// Enabled reports whether the query may fetch.
func (q *Query[T]) Enabled() bool {
	return q.enabled
}

// Get returns the value for the query's key.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	v, _, err := q.Result(ctx)
	return v, err
}

// Result returns the typed value along with the read metadata.
func (q *Query[T]) Result(ctx context.Context) (T, Result, error) {
	var zero T
	if !q.enabled {
		return zero, Result{}, ErrDisabled
	}

	res, err := q.client.Read(ctx, q.key, q.read)
	if err != nil {
		return zero, Result{}, err
	}

	v, ok := res.Value.(T)
	if !ok && res.Value != nil {
		return zero, res, fmt.Errorf("query %s: cached value has type %T", q.key, res.Value)
	}
	return v, res, nil
}

// Subscribe registers fn for events on the query's key.
func (q *Query[T]) Subscribe(fn Listener) (unsubscribe func()) {
	return q.client.Subscribe(q.key, fn)
}

// Invalidate marks the query's tag stale.
func (q *Query[T]) Invalidate() int {
	return q.client.Invalidate(q.key.Tag)
}

// MutationFunc performs a typed remote write.
type MutationFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// Mutation is a typed write through a Client that invalidates a fixed set
// of tags on success.
type Mutation[In, Out any] struct {
	client *Client
	fn     MutationFunc[In, Out]
	tags   []string
}

// NewMutation binds fn to client. Every successful call invalidates tags.
func NewMutation[In, Out any](client *Client, fn MutationFunc[In, Out], tags ...string) *Mutation[In, Out] {
	return &Mutation[In, Out]{
		client: client,
		fn:     fn,
		tags:   tags,
	}
}

// Do runs the mutation with in.
func (m *Mutation[In, Out]) Do(ctx context.Context, in In) (Out, error) {
	var zero Out

	v, err := m.client.Write(ctx, m.tags, func(ctx context.Context) (any, error) {
		return m.fn(ctx, in)
	})
	if err != nil {
		return zero, err
	}

	out, _ := v.(Out)
	return out, nil
}
