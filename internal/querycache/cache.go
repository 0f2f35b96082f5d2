// Package querycache is a keyed cache of query results. Each entry moves
// through empty, loading, fresh, stale and error states; invalidation marks
// entries stale so the next read refetches them.
package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/folio/internal/metrics"
)

// State is the lifecycle state of a cache entry.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateFresh
	StateStale
	StateError
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is a consistent view of one entry. Data may hold the previous
// result while Loading is true.
type Snapshot struct {
	State     State
	Data      any
	Err       error
	Loading   bool
	UpdatedAt time.Time
}

// Fetcher loads the value for a key.
type Fetcher func(ctx context.Context) (any, error)

type entry struct {
	state     State
	data      any
	err       error
	updatedAt time.Time
	// usedAt is the last time a caller read or wrote the entry.
	usedAt time.Time

	// epoch is bumped by every invalidation; a result fetched under an older
	// epoch is stored as stale.
	epoch uint64
	// seq numbers fetches; only the most recently started one may write.
	seq uint64

	flight *flight
	// prev is the state to restore when an abandoned fetch completes.
	prev State
}

type flight struct {
	seq       uint64
	epoch     uint64
	done      chan struct{}
	val       any
	err       error
	waiters   int
	cancel    context.CancelFunc
	abandoned bool
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[Key]*entry
	staleAfter time.Duration
	gcAfter    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleAfter marks fresh entries stale once they are older than d.
// Zero keeps entries fresh until invalidated.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cache) { c.staleAfter = d }
}

// WithGCAfter lets Sweep remove entries nobody has used for longer than d.
// Zero keeps entries until the cache is dropped.
func WithGCAfter(d time.Duration) Option {
	return func(c *Cache) { c.gcAfter = d }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]*entry),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached value for key when it is fresh. Otherwise it starts
// a fetch, or joins the one already running for the current epoch, and waits
// for it. The fetch is detached from ctx cancellation but keeps its values;
// it is cancelled once every caller waiting on it has given up, and its
// result is then dropped.
func (c *Cache) Get(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entry(key)
	e.usedAt = c.now()
	if e.state == StateFresh && !c.expired(e) {
		data := e.data
		c.mu.Unlock()
		metrics.CacheLookups.WithLabelValues(key.family(), "hit").Inc()
		return data, nil
	}

	fl := e.flight
	if fl != nil && fl.epoch == e.epoch && !fl.abandoned {
		fl.waiters++
		metrics.CacheLookups.WithLabelValues(key.family(), "shared").Inc()
	} else {
		fl = c.start(ctx, key, e, fetch)
		metrics.CacheLookups.WithLabelValues(key.family(), "miss").Inc()
	}
	c.mu.Unlock()

	select {
	case <-fl.done:
		return fl.val, fl.err
	case <-ctx.Done():
		c.mu.Lock()
		fl.waiters--
		if fl.waiters == 0 {
			fl.abandoned = true
			fl.cancel()
		}
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// start begins a new fetch for e. Caller holds c.mu.
func (c *Cache) start(ctx context.Context, key Key, e *entry, fetch Fetcher) *flight {
	e.seq++
	if e.state != StateLoading {
		e.prev = e.state
	}
	e.state = StateLoading

	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	fl := &flight{
		seq:     e.seq,
		epoch:   e.epoch,
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	e.flight = fl
	c.logger.Debug("cache: fetch", slog.String("key", string(key)), slog.Uint64("seq", fl.seq))

	go func() {
		defer cancel()
		val, err := fetch(fctx)
		c.complete(key, e, fl, val, err)
	}()
	return fl
}

func (c *Cache) complete(key Key, e *entry, fl *flight, val any, err error) {
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		close(fl.done)
	}()
	fl.val, fl.err = val, err

	if e.flight == fl {
		e.flight = nil
	}
	if fl.seq != e.seq {
		metrics.CacheDiscardedResponses.Inc()
		c.logger.Debug("cache: discard superseded response",
			slog.String("key", string(key)), slog.Uint64("seq", fl.seq), slog.Uint64("current", e.seq))
		return
	}
	if fl.abandoned {
		e.state = e.prev
		return
	}
	if err != nil {
		e.state = StateError
		e.err = err
		return
	}
	e.data = val
	e.err = nil
	e.updatedAt = c.now()
	if fl.epoch == e.epoch {
		e.state = StateFresh
	} else {
		e.state = StateStale
	}
}

// Invalidate marks every entry whose key has prefix p as stale and returns
// how many entries were affected. Entries being fetched keep loading, but
// their pending result will be stored as stale and a later Get starts a new
// fetch that supersedes it.
func (c *Cache) Invalidate(p Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !k.HasPrefix(p) {
			continue
		}
		e.epoch++
		switch e.state {
		case StateFresh:
			e.state = StateStale
		case StateLoading:
			if e.prev == StateFresh {
				e.prev = StateStale
			}
		}
		metrics.CacheInvalidations.WithLabelValues(k.family()).Inc()
		n++
	}
	if n > 0 {
		c.logger.Debug("cache: invalidate", slog.String("prefix", string(p)), slog.Int("entries", n))
	}
	return n
}

// Set stores v as the fresh value of key.
func (c *Cache) Set(key Key, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	e.seq++
	e.data = v
	e.err = nil
	e.state = StateFresh
	e.updatedAt = c.now()
	e.usedAt = e.updatedAt
}

// SetError marks key as failed with err, keeping any previous data.
func (c *Cache) SetError(key Key, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	e.seq++
	e.err = err
	e.state = StateError
	e.updatedAt = c.now()
	e.usedAt = e.updatedAt
}

// Peek returns a snapshot of key without fetching.
func (c *Cache) Peek(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{State: StateEmpty}
	}
	s := Snapshot{
		State:     e.state,
		Data:      e.data,
		Err:       e.err,
		Loading:   e.flight != nil,
		UpdatedAt: e.updatedAt,
	}
	if s.State == StateFresh && c.expired(e) {
		s.State = StateStale
	}
	return s
}

// Keys returns the keys currently held.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Sweep removes entries unused for longer than the WithGCAfter duration and
// returns how many it removed. Entries with a fetch in progress are kept.
func (c *Cache) Sweep() int {
	if c.gcAfter <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if e.flight != nil || now.Sub(e.usedAt) <= c.gcAfter {
			continue
		}
		delete(c.entries, k)
		n++
	}
	if n > 0 {
		c.logger.Debug("cache: sweep", slog.Int("entries", n))
	}
	return n
}

// Busy reports whether any fetch is in progress.
func (c *Cache) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.flight != nil {
			return true
		}
	}
	return false
}

func (c *Cache) entry(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) expired(e *entry) bool {
	return c.staleAfter > 0 && c.now().Sub(e.updatedAt) > c.staleAfter
}

// Fetch is a typed wrapper around Cache.Get.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("querycache: %s holds %T, not %T", key, v, zero)
	}
	return t, nil
}
