package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/resourcesync/internal/retry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// countingFetcher returns "<tag>-<n>" where n is the number of calls so far.
type countingFetcher struct {
	calls atomic.Int64
}

func (f *countingFetcher) Fetch(_ context.Context, key Key) (any, error) {
	n := f.calls.Add(1)
	return fmt.Sprintf("%s-%d", key.Tag, n), nil
}

func testPolicy() Policy {
	return Policy{
		StaleTime:    time.Minute,
		Expiry:       2 * time.Minute,
		FetchTimeout: 5 * time.Second,
		Mode:         ModeBlocking,
		Retry:        &retry.Config{MaxRetries: 0},
	}
}

func newTestClient(t *testing.T, fetch FetchFunc, clock *fakeClock, opts ...Option) *Client {
	t.Helper()

	all := []Option{
		WithPolicy(testPolicy()),
		WithClock(clock.Now),
		WithJanitorInterval(0),
	}
	c := New(fetch, append(all, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Read_MissFetchesAndStores(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)

	res, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "items-1", res.Value)
	assert.True(t, res.Fetched)
	assert.False(t, res.Stale)
	assert.Equal(t, clock.Now(), res.FetchedAt)

	e, ok := c.Peek(KeyWith("items"))
	require.True(t, ok)
	assert.Equal(t, "items-1", e.Value)
	assert.Equal(t, clock.Now().Add(time.Minute), e.StaleAt)
	assert.Equal(t, clock.Now().Add(2*time.Minute), e.ExpiresAt)
}

func TestClient_Read_FreshEntryIsServedWithoutFetch(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	res, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "items-1", res.Value)
	assert.False(t, res.Fetched)
	assert.Equal(t, int64(1), f.calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestClient_Read_ConcurrentReadsShareOneFetch(t *testing.T) {
	clock := newFakeClock()
	release := make(chan struct{})
	var calls atomic.Int64
	fetch := func(ctx context.Context, key Key) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}
	c := newTestClient(t, fetch, clock)

	const readers = 20
	var wg sync.WaitGroup
	results := make([]Result, readers)
	errs := make([]error, readers)
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Read(context.Background(), KeyWith("items", "page", "1"), ReadOptions{})
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for i := range readers {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i].Value)
	}
}

func TestClient_Read_StaleBlockingRefetches(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	res, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "items-2", res.Value)
	assert.True(t, res.Fetched)
	assert.False(t, res.Stale)
}

func TestClient_Read_StaleWhileRevalidate(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	res, err := c.Read(ctx, KeyWith("items"), ReadOptions{Mode: ModeStaleWhileRevalidate})
	require.NoError(t, err)
	assert.Equal(t, "items-1", res.Value)
	assert.True(t, res.Stale)
	assert.False(t, res.Fetched)

	require.Eventually(t, func() bool {
		e, ok := c.Peek(KeyWith("items"))
		return ok && e.Value == "items-2"
	}, time.Second, time.Millisecond)

	res, err = c.Read(ctx, KeyWith("items"), ReadOptions{Mode: ModeStaleWhileRevalidate})
	require.NoError(t, err)
	assert.Equal(t, "items-2", res.Value)
	assert.False(t, res.Stale)
	assert.Equal(t, int64(1), c.Stats().StaleHits)
}

func TestClient_Read_StaleWhileRevalidateFromPolicy(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	p := testPolicy()
	p.Mode = ModeStaleWhileRevalidate
	c := newTestClient(t, f.Fetch, clock, WithPolicy(p))
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	res, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, "items-1", res.Value)

	// Close waits for the background refetch.
	require.NoError(t, c.Close())
	assert.Equal(t, int64(2), f.calls.Load())
}

func TestClient_Read_ExpiredEntryIsNeverServed(t *testing.T) {
	clock := newFakeClock()
	fail := atomic.Bool{}
	f := &countingFetcher{}
	fetch := func(ctx context.Context, key Key) (any, error) {
		if fail.Load() {
			return nil, errors.New("backend down")
		}
		return f.Fetch(ctx, key)
	}
	c := newTestClient(t, fetch, clock)
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)

	fail.Store(true)
	clock.Advance(2 * time.Minute)

	for _, mode := range []Mode{ModeBlocking, ModeStaleWhileRevalidate} {
		res, err := c.Read(ctx, KeyWith("items"), ReadOptions{Mode: mode})
		require.Error(t, err, mode.String())
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.Nil(t, res.Value)
	}

	_, ok := c.Peek(KeyWith("items"))
	assert.False(t, ok)
}

func TestClient_Read_FetchFailureKeepsPriorEntry(t *testing.T) {
	clock := newFakeClock()
	cause := errors.New("backend down")
	fail := atomic.Bool{}
	fetch := func(_ context.Context, _ Key) (any, error) {
		if fail.Load() {
			return nil, cause
		}
		return "good", nil
	}
	c := newTestClient(t, fetch, clock)
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)

	fail.Store(true)
	clock.Advance(time.Minute)

	_, err = c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, cause)

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "items", ferr.Key.Tag)

	e, ok := c.Peek(KeyWith("items"))
	require.True(t, ok)
	assert.Equal(t, "good", e.Value)
	assert.Equal(t, int64(1), c.Stats().FetchErrors)
}

func TestClient_Read_RetriesFailedFetches(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int64
	fetch := func(_ context.Context, _ Key) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}
	p := testPolicy()
	p.Retry = &retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	c := newTestClient(t, fetch, clock, WithPolicy(p))

	res, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, int64(3), calls.Load())
}

func TestClient_Read_NotFoundIsNotRetried(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int64
	fetch := func(_ context.Context, _ Key) (any, error) {
		calls.Add(1)
		return nil, ErrNotFound
	}
	p := testPolicy()
	p.Retry = &retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}
	c := newTestClient(t, fetch, clock, WithPolicy(p))

	_, err := c.Read(context.Background(), KeyWith("resource", "id", "42"), ReadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, int64(1), calls.Load())
}

func TestClient_Read_PermanentErrorIsNotRetried(t *testing.T) {
	clock := newFakeClock()
	cause := errors.New("bad request")
	var calls atomic.Int64
	fetch := func(_ context.Context, _ Key) (any, error) {
		calls.Add(1)
		return nil, Permanent(cause)
	}
	p := testPolicy()
	p.Retry = &retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}
	c := newTestClient(t, fetch, clock, WithPolicy(p))

	_, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, int64(1), calls.Load())
}

func TestClient_Read_CancellationIsCallerLocal(t *testing.T) {
	clock := newFakeClock()
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context, _ Key) (any, error) {
		close(started)
		select {
		case <-release:
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := newTestClient(t, fetch, clock)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
		errCh <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		e, ok := c.Peek(KeyWith("items"))
		return ok && e.Value == "late"
	}, time.Second, time.Millisecond)
}

func TestClient_Read_FetchTimeout(t *testing.T) {
	clock := newFakeClock()
	fetch := func(ctx context.Context, _ Key) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p := testPolicy()
	p.FetchTimeout = 20 * time.Millisecond
	c := newTestClient(t, fetch, clock, WithPolicy(p))

	_, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Read_PerReadOverrides(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	opts := ReadOptions{StaleTime: 10 * time.Second, Expiry: 20 * time.Second}
	_, err := c.Read(ctx, KeyWith("items"), opts)
	require.NoError(t, err)

	e, ok := c.Peek(KeyWith("items"))
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(10*time.Second), e.StaleAt)
	assert.Equal(t, clock.Now().Add(20*time.Second), e.ExpiresAt)

	clock.Advance(10 * time.Second)
	res, err := c.Read(ctx, KeyWith("items"), opts)
	require.NoError(t, err)
	assert.Equal(t, "items-2", res.Value)
}

func TestClient_Read_FetchOverride(t *testing.T) {
	clock := newFakeClock()
	c := newTestClient(t, nil, clock)

	_, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	assert.ErrorIs(t, err, ErrNoFetcher)

	res, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{
		Fetch: func(_ context.Context, key Key) (any, error) { return "override", nil },
	})
	require.NoError(t, err)
	assert.Equal(t, "override", res.Value)
}

func TestClient_Invalidate_OnlyAffectsGivenTags(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	keys := []Key{
		KeyWith("resources", "page", "1"),
		KeyWith("resources", "page", "2"),
		KeyWith("resource", "id", "1"),
	}
	for _, k := range keys {
		_, err := c.Read(ctx, k, ReadOptions{})
		require.NoError(t, err)
	}

	n := c.Invalidate("resources")
	assert.Equal(t, 2, n)

	for _, k := range keys[:2] {
		e, ok := c.Peek(k)
		require.True(t, ok)
		assert.True(t, e.Invalidated, k.String())
		assert.NotNil(t, e.Value)
	}
	e, ok := c.Peek(keys[2])
	require.True(t, ok)
	assert.False(t, e.Invalidated)

	res, err := c.Read(ctx, keys[0], ReadOptions{})
	require.NoError(t, err)
	assert.True(t, res.Fetched)

	res, err = c.Read(ctx, keys[2], ReadOptions{})
	require.NoError(t, err)
	assert.False(t, res.Fetched)
}

func TestClient_Invalidate_NoTags(t *testing.T) {
	c := newTestClient(t, (&countingFetcher{}).Fetch, newFakeClock())
	assert.Equal(t, 0, c.Invalidate())
}

func TestClient_Invalidate_DuringFetchStoresStale(t *testing.T) {
	clock := newFakeClock()
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(_ context.Context, _ Key) (any, error) {
		close(started)
		<-release
		return "old", nil
	}
	c := newTestClient(t, fetch, clock)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
		done <- res
	}()

	<-started
	c.Invalidate("items")
	close(release)

	res := <-done
	assert.Equal(t, "old", res.Value)

	e, ok := c.Peek(KeyWith("items"))
	require.True(t, ok)
	assert.True(t, e.Invalidated)
}

func TestClient_Read_AfterWriteDoesNotReuseOlderFetch(t *testing.T) {
	clock := newFakeClock()

	var (
		mu     sync.Mutex
		remote = "v1"
		calls  atomic.Int64
	)
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(_ context.Context, _ Key) (any, error) {
		mu.Lock()
		snapshot := remote
		mu.Unlock()
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return snapshot, nil
	}
	c := newTestClient(t, fetch, clock)
	ctx := context.Background()

	before := make(chan Result, 1)
	go func() {
		res, _ := c.Read(ctx, KeyWith("resources"), ReadOptions{})
		before <- res
	}()
	<-started

	_, err := c.Write(ctx, []string{"resources"}, func(context.Context) (any, error) {
		mu.Lock()
		remote = "v2"
		mu.Unlock()
		return "created", nil
	})
	require.NoError(t, err)

	after := make(chan Result, 1)
	go func() {
		res, _ := c.Read(ctx, KeyWith("resources"), ReadOptions{})
		after <- res
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Equal(t, "v1", (<-before).Value)

	res := <-after
	assert.Equal(t, "v2", res.Value)
	assert.False(t, res.Stale)
	assert.Equal(t, int64(2), calls.Load())

	e, ok := c.Peek(KeyWith("resources"))
	require.True(t, ok)
	assert.Equal(t, "v2", e.Value)
	assert.False(t, e.Invalidated)
}

func TestClient_Read_AfterEvictAllDoesNotReuseOlderFetch(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(_ context.Context, _ Key) (any, error) {
		n := calls.Add(1)
		if n == 1 {
			close(started)
			<-release
		}
		return fmt.Sprintf("value-%d", n), nil
	}
	c := newTestClient(t, fetch, clock)
	ctx := context.Background()

	go func() { _, _ = c.Read(ctx, KeyWith("items"), ReadOptions{}) }()
	<-started
	c.EvictAll()

	after := make(chan Result, 1)
	go func() {
		res, _ := c.Read(ctx, KeyWith("items"), ReadOptions{})
		after <- res
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Equal(t, "value-2", (<-after).Value)
	e, ok := c.Peek(KeyWith("items"))
	require.True(t, ok)
	assert.Equal(t, "value-2", e.Value)
}

func TestClient_Write_SuccessInvalidates(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("resources"), ReadOptions{})
	require.NoError(t, err)

	v, err := c.Write(ctx, []string{"resources"}, func(context.Context) (any, error) {
		return "created", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "created", v)

	res, err := c.Read(ctx, KeyWith("resources"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "resources-2", res.Value)
}

func TestClient_Write_FailureLeavesCacheUntouched(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("resources"), ReadOptions{})
	require.NoError(t, err)

	cause := errors.New("conflict")
	_, err = c.Write(ctx, []string{"resources"}, func(context.Context) (any, error) {
		return nil, cause
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, err, cause)

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, []string{"resources"}, werr.Tags)

	e, ok := c.Peek(KeyWith("resources"))
	require.True(t, ok)
	assert.False(t, e.Invalidated)

	res, err := c.Read(ctx, KeyWith("resources"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "resources-1", res.Value)
}

func TestClient_Evict(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)

	assert.True(t, c.Evict(KeyWith("items")))
	assert.False(t, c.Evict(KeyWith("items")))

	_, ok := c.Peek(KeyWith("items"))
	assert.False(t, ok)

	res, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "items-2", res.Value)
	assert.True(t, res.Fetched)
}

func TestClient_EvictAll(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	for _, tag := range []string{"a", "b", "c"} {
		_, err := c.Read(ctx, KeyWith(tag), ReadOptions{})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, c.EvictAll())
	assert.Equal(t, 0, c.Stats().Size)
}

func TestClient_EvictAll_DuringFetchDoesNotStore(t *testing.T) {
	clock := newFakeClock()
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(_ context.Context, _ Key) (any, error) {
		close(started)
		<-release
		return "value", nil
	}
	c := newTestClient(t, fetch, clock)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
		done <- res
	}()

	<-started
	c.EvictAll()
	close(release)

	assert.Equal(t, "value", (<-done).Value)
	_, ok := c.Peek(KeyWith("items"))
	assert.False(t, ok)
}

func TestClient_Sweep_RemovesExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("old"), ReadOptions{})
	require.NoError(t, err)
	clock.Advance(90 * time.Second)
	_, err = c.Read(ctx, KeyWith("new"), ReadOptions{})
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, c.sweep())

	_, ok := c.Peek(KeyWith("old"))
	assert.False(t, ok)
	_, ok = c.Peek(KeyWith("new"))
	assert.True(t, ok)
}

func TestClient_Janitor_Runs(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock, WithJanitorInterval(5*time.Millisecond))

	_, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	require.Eventually(t, func() bool {
		return c.Stats().Size == 0
	}, time.Second, 5*time.Millisecond)
}

func TestClient_Set(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)

	c.Set(KeyWith("items"), "seeded")

	res, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "seeded", res.Value)
	assert.Equal(t, int64(0), f.calls.Load())
}

func TestClient_SetPolicy(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)

	c.SetPolicy(Policy{StaleTime: 10 * time.Second, Expiry: 5 * time.Second})
	p := c.Policy()
	assert.Equal(t, 10*time.Second, p.StaleTime)
	assert.Equal(t, 10*time.Second, p.Expiry)
	assert.Equal(t, ModeBlocking, p.Mode)
	assert.Positive(t, p.FetchTimeout)

	_, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	e, _ := c.Peek(KeyWith("items"))
	assert.Equal(t, clock.Now().Add(10*time.Second), e.StaleAt)
}

func TestClient_Subscribe(t *testing.T) {
	clock := newFakeClock()
	fail := atomic.Bool{}
	f := &countingFetcher{}
	fetch := func(ctx context.Context, key Key) (any, error) {
		if fail.Load() {
			return nil, errors.New("down")
		}
		return f.Fetch(ctx, key)
	}
	c := newTestClient(t, fetch, clock)
	ctx := context.Background()
	key := KeyWith("items", "page", "1")

	var (
		mu     sync.Mutex
		events []Event
	)
	unsubscribe := c.Subscribe(key, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	// Events for other keys are not delivered.
	_, err := c.Read(ctx, KeyWith("items", "page", "2"), ReadOptions{})
	require.NoError(t, err)

	_, err = c.Read(ctx, key, ReadOptions{})
	require.NoError(t, err)
	c.Invalidate("items")
	fail.Store(true)
	_, err = c.Read(ctx, key, ReadOptions{})
	require.Error(t, err)
	c.Evict(key)

	unsubscribe()
	unsubscribe()
	fail.Store(false)
	_, err = c.Read(ctx, key, ReadOptions{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
	assert.Equal(t, EventUpdated, events[0].Type)
	assert.Equal(t, "items-2", events[0].Value)
	assert.Equal(t, EventInvalidated, events[1].Type)
	assert.Equal(t, EventFetchFailed, events[2].Type)
	assert.ErrorIs(t, events[2].Err, ErrFetchFailed)
	assert.Equal(t, EventEvicted, events[3].Type)
	for _, ev := range events {
		assert.True(t, ev.Key.Equal(key))
	}
}

func TestClient_Subscribe_ListenerMayCallClient(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)

	var peeked atomic.Bool
	c.Subscribe(KeyWith("items"), func(ev Event) {
		if ev.Type == EventUpdated {
			_, ok := c.Peek(ev.Key)
			peeked.Store(ok)
		}
	})

	_, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	assert.True(t, peeked.Load())
}

func TestClient_Closed(t *testing.T) {
	f := &countingFetcher{}
	c := New(f.Fetch, WithJanitorInterval(time.Millisecond))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Read(context.Background(), KeyWith("items"), ReadOptions{})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.Write(context.Background(), nil, func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_Close_WhileRevalidating(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{}
	c := New(f.Fetch, WithPolicy(testPolicy()), WithClock(clock.Now), WithJanitorInterval(0))
	ctx := context.Background()

	_, err := c.Read(ctx, KeyWith("items"), ReadOptions{})
	require.NoError(t, err)
	clock.Advance(90 * time.Second)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_, _ = c.Read(ctx, KeyWith("items"), ReadOptions{Mode: ModeStaleWhileRevalidate})
				c.Invalidate("items")
			}
		}()
	}

	require.NoError(t, c.Close())
	wg.Wait()
	require.NoError(t, c.Close())

	_, err = c.Read(ctx, KeyWith("items"), ReadOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEntry_Horizons(t *testing.T) {
	now := time.Now()
	e := &Entry{StaleAt: now.Add(time.Minute), ExpiresAt: now.Add(2 * time.Minute)}

	assert.False(t, e.IsStale(now))
	assert.True(t, e.IsStale(now.Add(time.Minute)))
	assert.False(t, e.IsExpired(now.Add(time.Minute)))
	assert.True(t, e.IsExpired(now.Add(2*time.Minute)))

	e.Invalidated = true
	assert.True(t, e.IsStale(now))
}
