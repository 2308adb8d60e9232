package query

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
	"github.com/vyrodovalexey/resourcesync/internal/retry"
)

// tracerName is the OpenTelemetry tracer name for query operations.
const tracerName = "resourcesync/query"

// FetchFunc loads the current value for key from the remote side.
type FetchFunc func(ctx context.Context, key Key) (any, error)

// WriteFunc performs a remote mutation.
type WriteFunc func(ctx context.Context) (any, error)

// Option configures a Client.
type Option func(*Client)

// WithPolicy sets the initial read policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) {
		c.policy = p.normalize()
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock replaces time.Now for staleness and expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithJanitorInterval sets how often expired entries are swept.
// Zero or a negative value disables the janitor.
func WithJanitorInterval(d time.Duration) Option {
	return func(c *Client) {
		c.janitorInterval = d
	}
}

// Stats is a snapshot of client counters.
type Stats struct {
	Hits          int64
	StaleHits     int64
	Misses        int64
	Fetches       int64
	FetchErrors   int64
	SharedFetches int64
	Size          int
}

// Client caches the results of remote fetches and keeps them consistent
// with remote writes. All methods are safe for concurrent use.
type Client struct {
	fetch           FetchFunc
	logger          observability.Logger
	now             func() time.Time
	janitorInterval time.Duration
	metrics         *Metrics
	group           singleflight.Group

	mu          sync.Mutex
	policy      Policy
	entries     map[string]*Entry
	generations map[string]uint64
	epoch       uint64
	subs        map[string][]subscription
	nextSubID   int64

	hits          atomic.Int64
	staleHits     atomic.Int64
	misses        atomic.Int64
	fetches       atomic.Int64
	fetchErrors   atomic.Int64
	sharedFetches atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a client that loads missing or stale keys with fetch.
// fetch may be nil when every read passes ReadOptions.Fetch.
func New(fetch FetchFunc, opts ...Option) *Client {
	c := &Client{
		fetch:           fetch,
		logger:          observability.NopLogger(),
		now:             time.Now,
		janitorInterval: config.DefaultJanitorInterval,
		metrics:         GetMetrics(),
		policy:          DefaultPolicy(),
		entries:         make(map[string]*Entry),
		generations:     make(map[string]uint64),
		subs:            make(map[string][]subscription),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.janitorInterval > 0 {
		c.wg.Add(1)
		go c.janitor()
	}

	c.logger.Debug("query client initialized",
		observability.Duration("staleTime", c.policy.StaleTime),
		observability.Duration("expiry", c.policy.Expiry),
		observability.String("mode", c.policy.Mode.String()))

	return c
}

// Read returns the value for key, fetching it when there is no usable
// entry. Concurrent reads of the same key share a single fetch. If ctx ends
// first, Read returns ctx.Err() while the fetch carries on for the others.
func (c *Client) Read(ctx context.Context, key Key, opts ReadOptions) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "query.Read",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("query.tag", key.Tag),
			attribute.String("query.key", key.String()),
		),
	)
	defer span.End()

	if c.isClosed() {
		return Result{}, ErrClosed
	}

	id := key.id()

	c.mu.Lock()
	o := opts.resolve(c.policy)
	now := c.now()
	seen := fetchStamp{gen: c.generations[key.Tag], epoch: c.epoch}
	var events []Event
	if e, ok := c.entries[id]; ok {
		switch {
		case e.IsExpired(now):
			events = append(events, c.removeLocked(id, evictReasonExpired))
		case !e.IsStale(now):
			res := Result{Value: e.Value, FetchedAt: e.FetchedAt}
			c.mu.Unlock()
			c.hits.Add(1)
			c.metrics.hitsTotal.WithLabelValues(key.Tag).Inc()
			span.SetAttributes(attribute.String("query.outcome", "hit"))
			return res, nil
		case o.Mode == ModeStaleWhileRevalidate:
			res := Result{Value: e.Value, FetchedAt: e.FetchedAt, Stale: true}
			c.mu.Unlock()
			c.staleHits.Add(1)
			c.metrics.staleHitsTotal.WithLabelValues(key.Tag).Inc()
			span.SetAttributes(attribute.String("query.outcome", "stale"))
			c.revalidate(ctx, key, o, seen)
			return res, nil
		}
	}
	c.mu.Unlock()
	c.dispatch(events)

	c.misses.Add(1)
	c.metrics.missesTotal.WithLabelValues(key.Tag).Inc()
	span.SetAttributes(attribute.String("query.outcome", "miss"))

	res, err := c.fetchAndWait(ctx, key, o, seen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Bool("query.shared", res.Shared))
	return res, nil
}

// Peek returns the entry for key without fetching, touching metrics or
// checking freshness. Expired entries are reported as absent.
func (c *Client) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.id()]
	if !ok || e.IsExpired(c.now()) {
		return Entry{}, false
	}
	return *e, true
}

// Set stores value for key as if it had just been fetched.
func (c *Client) Set(key Key, value any) {
	c.mu.Lock()
	e := c.storeLocked(key, value, c.policy.StaleTime, c.policy.Expiry)
	c.mu.Unlock()

	c.dispatch([]Event{{Type: EventUpdated, Key: e.Key, Value: value}})
}

// Write runs fn and, when it succeeds, marks every entry tagged with one of
// tags stale. On failure the cache is left as it was and a *WriteError is
// returned. Writes are never retried.
func (c *Client) Write(ctx context.Context, tags []string, fn WriteFunc) (any, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "query.Write",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.StringSlice("query.tags", tags)),
	)
	defer span.End()

	if c.isClosed() {
		return nil, ErrClosed
	}

	v, err := fn(ctx)
	if err != nil {
		werr := &WriteError{Tags: slices.Clone(tags), Err: err}
		span.RecordError(werr)
		span.SetStatus(codes.Error, werr.Error())
		c.logger.Warn("write failed",
			observability.Strings("tags", tags),
			observability.Error(err))
		return nil, werr
	}

	n := c.Invalidate(tags...)
	span.SetAttributes(attribute.Int("query.invalidated", n))
	return v, nil
}

// Invalidate marks every entry tagged with one of tags stale and returns
// how many entries were affected. Values are kept; the next read refetches.
// Fetches already in flight for these tags store their results stale.
func (c *Client) Invalidate(tags ...string) int {
	if len(tags) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}

	var events []Event
	c.mu.Lock()
	for tag := range set {
		c.generations[tag]++
	}
	for _, e := range c.entries {
		if _, ok := set[e.Key.Tag]; !ok {
			continue
		}
		e.Invalidated = true
		events = append(events, Event{Type: EventInvalidated, Key: e.Key})
	}
	c.mu.Unlock()

	for tag := range set {
		c.metrics.invalidationsTotal.WithLabelValues(tag).Inc()
	}
	c.logger.Debug("tags invalidated",
		observability.Strings("tags", tags),
		observability.Int("entries", len(events)))

	c.dispatch(events)
	return len(events)
}

// Evict removes the entry for key. It reports whether an entry existed.
func (c *Client) Evict(key Key) bool {
	c.mu.Lock()
	id := key.id()
	if _, ok := c.entries[id]; !ok {
		c.mu.Unlock()
		return false
	}
	ev := c.removeLocked(id, evictReasonExplicit)
	c.mu.Unlock()

	c.dispatch([]Event{ev})
	return true
}

// EvictAll removes every entry. Fetches in flight when EvictAll is called
// still answer their readers but do not repopulate the cache.
func (c *Client) EvictAll() int {
	c.mu.Lock()
	c.epoch++
	events := make([]Event, 0, len(c.entries))
	for id := range c.entries {
		events = append(events, c.removeLocked(id, evictReasonCleared))
	}
	c.mu.Unlock()

	c.logger.Debug("cache cleared", observability.Int("entries", len(events)))
	c.dispatch(events)
	return len(events)
}

// Subscribe registers fn for events on key and returns a function that
// removes the registration.
func (c *Client) Subscribe(key Key, fn Listener) (unsubscribe func()) {
	id := key.id()

	c.mu.Lock()
	c.nextSubID++
	subID := c.nextSubID
	c.subs[id] = append(c.subs[id], subscription{id: subID, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.subs[id] = slices.DeleteFunc(c.subs[id], func(s subscription) bool {
				return s.id == subID
			})
			if len(c.subs[id]) == 0 {
				delete(c.subs, id)
			}
		})
	}
}

// SetPolicy replaces the read policy. Existing entries keep the horizons
// they were stored with.
func (c *Client) SetPolicy(p Policy) {
	p = p.normalize()

	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()

	c.logger.Info("query policy updated",
		observability.Duration("staleTime", p.StaleTime),
		observability.Duration("expiry", p.Expiry),
		observability.Duration("fetchTimeout", p.FetchTimeout),
		observability.String("mode", p.Mode.String()))
}

// Policy returns the current read policy.
func (c *Client) Policy() Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()

	return Stats{
		Hits:          c.hits.Load(),
		StaleHits:     c.staleHits.Load(),
		Misses:        c.misses.Load(),
		Fetches:       c.fetches.Load(),
		FetchErrors:   c.fetchErrors.Load(),
		SharedFetches: c.sharedFetches.Load(),
		Size:          size,
	}
}

// Close stops the janitor, cancels fetches in flight and waits for
// background revalidations to finish. Reads and writes after Close fail
// with ErrClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
	})
	c.wg.Wait()
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// fetchStamp is the tag generation and epoch a fetch started under, or a
// reader observed.
type fetchStamp struct {
	gen   uint64
	epoch uint64
}

// covers reports whether a fetch stamped s reflects everything a reader
// stamped seen has observed.
func (s fetchStamp) covers(seen fetchStamp) bool {
	return s.gen >= seen.gen && s.epoch >= seen.epoch
}

// fetchOutcome is the value shared between readers of one fetch.
type fetchOutcome struct {
	value     any
	fetchedAt time.Time
	stamp     fetchStamp
}

func (c *Client) fetchAndWait(ctx context.Context, key Key, o ReadOptions, seen fetchStamp) (Result, error) {
	fetch := o.Fetch
	if fetch == nil {
		fetch = c.fetch
	}
	if fetch == nil {
		return Result{}, ErrNoFetcher
	}

	r, err := c.join(ctx, key, o, fetch, seen)
	if err != nil {
		return Result{}, err
	}
	if r.Shared {
		c.sharedFetches.Add(1)
		c.metrics.sharedFetchesTotal.WithLabelValues(key.Tag).Inc()
	}
	if r.Err != nil {
		return Result{}, r.Err
	}
	out := r.Val.(fetchOutcome)
	return Result{
		Value:     out.value,
		FetchedAt: out.fetchedAt,
		Fetched:   true,
		Shared:    r.Shared,
	}, nil
}

// join runs or joins the fetch of key and waits for it. A fetch that started
// before an invalidation or clear the caller has seen is not accepted; once
// it completes a new one is started, so at most one fetch per key is in
// flight at any time.
func (c *Client) join(
	ctx context.Context,
	key Key,
	o ReadOptions,
	fetch FetchFunc,
	seen fetchStamp,
) (singleflight.Result, error) {
	for {
		ch := c.group.DoChan(key.id(), func() (any, error) {
			return c.doFetch(ctx, key, o, fetch)
		})

		var r singleflight.Result
		select {
		case <-ctx.Done():
			return singleflight.Result{}, ctx.Err()
		case r = <-ch:
		}

		out, ok := r.Val.(fetchOutcome)
		if !ok || out.stamp.covers(seen) || c.isClosed() {
			return r, nil
		}
		c.logger.Debug("fetch predates invalidation, refetching",
			observability.String("key", key.String()))
	}
}

// revalidate refetches key in the background. Errors are reported through
// EventFetchFailed only.
func (c *Client) revalidate(ctx context.Context, key Key, o ReadOptions, seen fetchStamp) {
	fetch := o.Fetch
	if fetch == nil {
		fetch = c.fetch
	}
	if fetch == nil {
		return
	}

	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		_, _ = c.join(context.WithoutCancel(ctx), key, o, fetch, seen)
	}()
}

// doFetch runs inside the singleflight group. ctx is the first caller's
// context; only its values are used.
func (c *Client) doFetch(ctx context.Context, key Key, o ReadOptions, fetch FetchFunc) (any, error) {
	id := key.id()

	c.mu.Lock()
	now := c.now()
	// A fetch for this key may have completed between the caller's lookup
	// and joining the group.
	stamp := fetchStamp{gen: c.generations[key.Tag], epoch: c.epoch}
	if e, ok := c.entries[id]; ok && !e.IsStale(now) && !e.IsExpired(now) {
		out := fetchOutcome{value: e.Value, fetchedAt: e.FetchedAt, stamp: stamp}
		c.mu.Unlock()
		return out, nil
	}
	policy := c.policy
	c.mu.Unlock()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), policy.FetchTimeout)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-fctx.Done():
		}
	}()

	sctx, span := otel.Tracer(tracerName).Start(fctx, "query.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("query.tag", key.Tag),
			attribute.String("query.key", key.String()),
		),
	)
	defer span.End()

	c.fetches.Add(1)
	start := time.Now()
	value, err := retry.Do(sctx, policy.Retry, func(ctx context.Context) (any, error) {
		return fetch(ctx, key)
	}, &retry.Options{
		ShouldRetry: func(err error) bool {
			return !IsPermanent(err) && !errors.Is(err, context.Canceled)
		},
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying fetch",
				observability.String("key", key.String()),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err))
		},
	})
	c.metrics.fetchDuration.WithLabelValues(key.Tag).Observe(time.Since(start).Seconds())

	if err != nil {
		c.fetchErrors.Add(1)
		c.metrics.fetchesTotal.WithLabelValues(key.Tag, fetchResultError).Inc()

		ferr := &FetchError{Key: key, Err: err}
		span.RecordError(ferr)
		span.SetStatus(codes.Error, ferr.Error())
		c.logger.Warn("fetch failed",
			observability.String("key", key.String()),
			observability.Error(err))

		c.dispatch([]Event{{Type: EventFetchFailed, Key: key, Err: ferr}})
		return fetchOutcome{stamp: stamp}, ferr
	}

	c.mu.Lock()
	if c.epoch != stamp.epoch || c.isClosed() {
		fetchedAt := c.now()
		c.mu.Unlock()
		c.metrics.fetchesTotal.WithLabelValues(key.Tag, fetchResultDiscard).Inc()
		span.SetAttributes(attribute.Bool("query.stored", false))
		return fetchOutcome{value: value, fetchedAt: fetchedAt, stamp: stamp}, nil
	}
	e := c.storeLocked(key, value, o.StaleTime, o.Expiry)
	if c.generations[key.Tag] != stamp.gen {
		e.Invalidated = true
	}
	out := fetchOutcome{value: e.Value, fetchedAt: e.FetchedAt, stamp: stamp}
	c.mu.Unlock()

	c.metrics.fetchesTotal.WithLabelValues(key.Tag, fetchResultSuccess).Inc()
	span.SetAttributes(attribute.Bool("query.stored", true))

	c.dispatch([]Event{{Type: EventUpdated, Key: key, Value: value}})
	return out, nil
}

// storeLocked replaces the entry for key. c.mu must be held.
func (c *Client) storeLocked(key Key, value any, staleTime, expiry time.Duration) *Entry {
	now := c.now()
	id := key.id()
	if _, ok := c.entries[id]; !ok {
		c.metrics.entries.Inc()
	}
	e := &Entry{
		Key:       NewKey(key.Tag, key.Filters),
		Value:     value,
		FetchedAt: now,
		StaleAt:   now.Add(staleTime),
		ExpiresAt: now.Add(max(expiry, staleTime)),
	}
	c.entries[id] = e
	return e
}

// removeLocked deletes the entry with the given id. c.mu must be held and
// the entry must exist.
func (c *Client) removeLocked(id, reason string) Event {
	e := c.entries[id]
	delete(c.entries, id)
	c.metrics.entries.Dec()
	c.metrics.evictionsTotal.WithLabelValues(reason).Inc()
	return Event{Type: EventEvicted, Key: e.Key}
}

// dispatch delivers events to the listeners registered at the time of the
// call, outside the lock.
func (c *Client) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}

	type delivery struct {
		ev        Event
		listeners []subscription
	}

	c.mu.Lock()
	deliveries := make([]delivery, 0, len(events))
	for _, ev := range events {
		subs := c.subs[ev.Key.id()]
		if len(subs) == 0 {
			continue
		}
		deliveries = append(deliveries, delivery{ev: ev, listeners: slices.Clone(subs)})
	}
	c.mu.Unlock()

	for _, d := range deliveries {
		for _, s := range d.listeners {
			s.fn(d.ev)
		}
	}
}

func (c *Client) janitor() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evicts every expired entry and returns how many were removed.
func (c *Client) sweep() int {
	c.mu.Lock()
	now := c.now()
	var events []Event
	for id, e := range c.entries {
		if e.IsExpired(now) {
			events = append(events, c.removeLocked(id, evictReasonExpired))
		}
	}
	c.mu.Unlock()

	if len(events) > 0 {
		c.logger.Debug("expired entries evicted", observability.Int("entries", len(events)))
	}
	c.dispatch(events)
	return len(events)
}
