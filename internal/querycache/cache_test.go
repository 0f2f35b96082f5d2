package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constFetcher(calls *atomic.Int32, v any) Fetcher {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return v, nil
	}
}

// gatedFetcher blocks until release receives the value to return.
func gatedFetcher(started chan<- struct{}, release <-chan any) Fetcher {
	return func(ctx context.Context) (any, error) {
		started <- struct{}{}
		select {
		case v := <-release:
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

func TestGet_MissThenHit(t *testing.T) {
	c := New()
	var calls atomic.Int32
	key := NewKey("notes")

	assert.Equal(t, StateEmpty, c.Peek(key).State)

	v, err := c.Get(context.Background(), key, constFetcher(&calls, "a"))
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = c.Get(context.Background(), key, constFetcher(&calls, "b"))
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateFresh, c.Peek(key).State)
}

func TestGet_ConcurrentCallersShareFetch(t *testing.T) {
	c := New()
	key := NewKey("notes")
	started := make(chan struct{}, 4)
	release := make(chan any)
	fetch := gatedFetcher(started, release)

	var wg sync.WaitGroup
	results := make([]any, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Get(context.Background(), key, fetch)
		}()
	}
	<-started
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.entries[key].flight != nil && c.entries[key].flight.waiters == 3
	})
	release <- "v"
	wg.Wait()

	assert.Equal(t, []any{"v", "v", "v"}, results)
	assert.Len(t, started, 0, "only one fetch should have run")
}

func TestLoadingIsExposed(t *testing.T) {
	c := New()
	key := NewKey("notes", "starred")
	started := make(chan struct{}, 1)
	release := make(chan any)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), key, gatedFetcher(started, release))
	}()
	<-started

	snap := c.Peek(key)
	assert.Equal(t, StateLoading, snap.State)
	assert.True(t, snap.Loading)

	release <- []string{"x"}
	<-done
	snap = c.Peek(key)
	assert.Equal(t, StateFresh, snap.State)
	assert.False(t, snap.Loading)
}

func TestInvalidate_StaleThenRefetch(t *testing.T) {
	c := New()
	var calls atomic.Int32
	key := NewKey("notes")
	ctx := context.Background()

	_, err := c.Get(ctx, key, constFetcher(&calls, "v1"))
	require.NoError(t, err)

	assert.Equal(t, 1, c.Invalidate(key))
	snap := c.Peek(key)
	assert.Equal(t, StateStale, snap.State)
	assert.Equal(t, "v1", snap.Data, "stale data stays readable")

	v, err := c.Get(ctx, key, constFetcher(&calls, "v2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
	assert.Equal(t, StateFresh, c.Peek(key).State)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidate_PrefixMatching(t *testing.T) {
	c := New()
	var calls atomic.Int32
	ctx := context.Background()
	keys := []Key{
		NewKey("notes"),
		NewKey("notes", "starred"),
		NewKey("notes", "n1"),
		NewKey("notes", "search", "milk"),
		NewKey("notesarchive"),
		NewKey("folders"),
	}
	for _, k := range keys {
		_, err := c.Get(ctx, k, constFetcher(&calls, 1))
		require.NoError(t, err)
	}

	assert.Equal(t, 4, c.Invalidate(NewKey("notes")))
	assert.Equal(t, StateFresh, c.Peek(NewKey("notesarchive")).State)
	assert.Equal(t, StateFresh, c.Peek(NewKey("folders")).State)

	assert.Equal(t, 1, c.Invalidate(NewKey("folders")))
	assert.Equal(t, 0, c.Invalidate(NewKey("missing")))
}

func TestInvalidateDuringFetch_StoresStale(t *testing.T) {
	c := New()
	key := NewKey("notes")
	started := make(chan struct{}, 1)
	release := make(chan any)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), key, gatedFetcher(started, release))
	}()
	<-started
	c.Invalidate(key)
	release <- "before-mutation"
	<-done

	snap := c.Peek(key)
	assert.Equal(t, StateStale, snap.State)
	assert.Equal(t, "before-mutation", snap.Data)
}

func TestStaleResponseProtection(t *testing.T) {
	c := New()
	key := NewKey("notes")
	startedOld := make(chan struct{}, 1)
	releaseOld := make(chan any)
	ctx := context.Background()

	oldDone := make(chan any)
	go func() {
		v, _ := c.Get(ctx, key, gatedFetcher(startedOld, releaseOld))
		oldDone <- v
	}()
	<-startedOld

	// A mutation lands while the old fetch is in flight; the next read
	// starts a newer fetch instead of joining the old one.
	c.Invalidate(key)
	var calls atomic.Int32
	v, err := c.Get(ctx, key, constFetcher(&calls, "new"))
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	releaseOld <- "old"
	assert.Equal(t, "old", <-oldDone, "the old caller still gets its own response")

	snap := c.Peek(key)
	assert.Equal(t, "new", snap.Data)
	assert.Equal(t, StateFresh, snap.State)
}

func TestFetchError(t *testing.T) {
	c := New()
	key := NewKey("folders")
	boom := errors.New("boom")
	ctx := context.Background()

	_, err := c.Get(ctx, key, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	snap := c.Peek(key)
	assert.Equal(t, StateError, snap.State)
	assert.ErrorIs(t, snap.Err, boom)

	var calls atomic.Int32
	v, err := c.Get(ctx, key, constFetcher(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Nil(t, c.Peek(key).Err)
}

func TestCancelledWaiterAbandonsFetch(t *testing.T) {
	c := New()
	key := NewKey("notes", "recent")
	started := make(chan struct{}, 1)
	fetchCtx := make(chan context.Context, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, key, func(fctx context.Context) (any, error) {
			fetchCtx <- fctx
			started <- struct{}{}
			<-fctx.Done()
			return "late write", fctx.Err()
		})
		errc <- err
	}()
	<-started
	cancel()

	require.ErrorIs(t, <-errc, context.Canceled)
	fctx := <-fetchCtx
	select {
	case <-fctx.Done():
	case <-time.After(time.Second):
		t.Fatal("fetch context was not cancelled")
	}

	waitFor(t, func() bool { return !c.Peek(key).Loading })
	snap := c.Peek(key)
	assert.Equal(t, StateEmpty, snap.State)
	assert.Nil(t, snap.Data, "abandoned fetch must not write")
}

func TestFetchKeepsContextValues(t *testing.T) {
	type ctxKey struct{}
	c := New()
	ctx := context.WithValue(context.Background(), ctxKey{}, "alice")

	v, err := Fetch(ctx, c, NewKey("notes"), func(ctx context.Context) (string, error) {
		return ctx.Value(ctxKey{}).(string), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
}

func TestFetch_TypeMismatch(t *testing.T) {
	c := New()
	key := NewKey("notes")
	c.Set(key, 42)

	_, err := Fetch(context.Background(), c, key, func(context.Context) (string, error) { return "x", nil })
	require.Error(t, err)
}

func TestStaleAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithStaleAfter(time.Minute), WithClock(func() time.Time { return now }))
	key := NewKey("folders")
	var calls atomic.Int32

	_, err := c.Get(context.Background(), key, constFetcher(&calls, "a"))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateStale, c.Peek(key).State)

	_, err = c.Get(context.Background(), key, constFetcher(&calls, "b"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSetAndSetError(t *testing.T) {
	c := New()
	key := NewKey("mutations", "update-note")

	c.SetError(key, errors.New("nope"))
	assert.Equal(t, StateError, c.Peek(key).State)

	c.Set(key, "ok")
	snap := c.Peek(key)
	assert.Equal(t, StateFresh, snap.State)
	assert.Nil(t, snap.Err)
	assert.Len(t, c.Keys(), 1)
}

func TestSweepRemovesIdleEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithGCAfter(5*time.Minute), WithClock(func() time.Time { return now }))
	idle := NewKey("notes", "search", "old")
	used := NewKey("notes")
	var calls atomic.Int32

	_, err := c.Get(context.Background(), idle, constFetcher(&calls, "a"))
	require.NoError(t, err)
	now = now.Add(3 * time.Minute)
	_, err = c.Get(context.Background(), used, constFetcher(&calls, "b"))
	require.NoError(t, err)

	now = now.Add(3 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, StateEmpty, c.Peek(idle).State)
	assert.Equal(t, StateFresh, c.Peek(used).State)

	// A sweep keeps entries whose fetch is still running.
	started := make(chan struct{}, 1)
	release := make(chan any)
	done := make(chan struct{})
	loading := NewKey("folders")
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), loading, gatedFetcher(started, release))
	}()
	<-started
	now = now.Add(10 * time.Minute)
	assert.True(t, c.Busy())
	assert.Equal(t, 1, c.Sweep())
	assert.True(t, c.Peek(loading).Loading)

	release <- "f"
	<-done
	assert.False(t, c.Busy())
	assert.Equal(t, StateFresh, c.Peek(loading).State)
}

func TestSweepDisabledByDefault(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithClock(func() time.Time { return now }))
	c.Set(NewKey("notes"), "a")
	now = now.Add(24 * time.Hour)
	assert.Zero(t, c.Sweep())
	assert.Len(t, c.Keys(), 1)
}

func TestKeySegments(t *testing.T) {
	k := NewKey("notes", "search", "a/b c")
	assert.Equal(t, []string{"notes", "search", "a/b c"}, k.Segments())
	assert.True(t, k.HasPrefix(NewKey("notes", "search")))
	assert.False(t, NewKey("notes", "search", "a").HasPrefix(NewKey("notes", "search", "a/b c")))
	assert.Equal(t, "search", k.family())
	assert.Equal(t, "note", NewKey("notes", "n1").family())
}
