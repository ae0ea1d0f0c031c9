// Package cache provides keyed async memoization: concurrent requests for
// the same key share one fetch, settled values are served until they go
// stale, and stale entries are revalidated in the background while the old
// value keeps being returned.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Key identifies a cache slot. Keys are built from normalized primitive
// parts so equality never depends on object identity of transient handles.
type Key string

// NewKey joins the given parts into a key. Parts are normalized to strings;
// order matters.
func NewKey(parts ...any) Key {
	strs := make([]string, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case string:
			strs[i] = v
		case fmt.Stringer:
			strs[i] = v.String()
		default:
			strs[i] = fmt.Sprintf("%v", v)
		}
	}
	return Key(strings.Join(strs, "\x1f"))
}

// Loader fetches the value for a key.
type Loader func(ctx context.Context) (any, error)

type entry struct {
	done      chan struct{} // closed once the loader settles
	value     any
	err       error
	createdAt time.Time
	settled   bool

	// Previous settled value, present while a revalidation is in flight.
	prev    any
	hasPrev bool
}

// Cache is the keyed async memoization table. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	now     func() time.Time

	hits   func()
	misses func()
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[Key]*entry),
		now:     time.Now,
	}
}

// SetClock overrides the time source (for tests).
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// OnHitMiss installs optional counters invoked on cache hits and misses.
func (c *Cache) OnHitMiss(hit, miss func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = hit
	c.misses = miss
}

// Get returns the value for key, fetching it with loader when absent or
// stale. Behavior per key:
//   - no entry: start the loader, wait for it, store the result
//   - unsettled entry: join the in-flight fetch (no second loader call);
//     if a previous value exists, return it immediately instead of waiting
//   - settled fresh entry: return the cached value
//   - settled stale entry: start a background revalidation and return the
//     previous value (callers re-invoke Get to observe the refreshed one)
//
// A failed loader settles and evicts the entry so the next Get retries.
func (c *Cache) Get(ctx context.Context, key Key, loader Loader, refreshInterval time.Duration) (any, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = c.startLoadLocked(ctx, key, loader, nil, false)
		c.countLocked(false)
		c.mu.Unlock()
		return c.wait(ctx, e)
	}

	if !e.settled {
		if e.hasPrev {
			prev := e.prev
			c.countLocked(true)
			c.mu.Unlock()
			return prev, nil
		}
		c.mu.Unlock()
		return c.wait(ctx, e)
	}

	if c.now().Sub(e.createdAt) <= refreshInterval {
		v := e.value
		c.countLocked(true)
		c.mu.Unlock()
		return v, nil
	}

	// Stale: replace the entry with an in-flight one carrying the old
	// value, and serve the old value right away.
	prev := e.value
	c.startLoadLocked(ctx, key, loader, prev, true)
	c.countLocked(false)
	c.mu.Unlock()
	return prev, nil
}

// startLoadLocked installs a fresh unsettled entry for key and launches its
// loader. Callers must hold c.mu.
func (c *Cache) startLoadLocked(ctx context.Context, key Key, loader Loader, prev any, hasPrev bool) *entry {
	e := &entry{
		done:      make(chan struct{}),
		createdAt: c.now(),
		prev:      prev,
		hasPrev:   hasPrev,
	}
	c.entries[key] = e

	// Loads are detached from the caller's context: one caller timing out
	// must not fail the shared fetch for everyone else.
	go func() {
		value, err := loader(context.WithoutCancel(ctx))

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.entries[key] != e {
			// Invalidated or superseded while in flight; discard the
			// result but still release waiters.
			e.value, e.err = value, err
			e.settled = true
			close(e.done)
			return
		}

		e.value, e.err = value, err
		e.createdAt = c.now()
		e.settled = true
		e.prev, e.hasPrev = nil, false
		if err != nil {
			// Never cache a failure; next Get retries.
			delete(c.entries, key)
		}
		close(e.done)
	}()
	return e
}

func (c *Cache) wait(ctx context.Context, e *entry) (any, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) countLocked(hit bool) {
	if hit && c.hits != nil {
		c.hits()
	}
	if !hit && c.misses != nil {
		c.misses()
	}
}

// Invalidate removes the entry for key outright so the next Get performs an
// unconditional fresh load. An in-flight fetch for the key is allowed to
// complete but its result is discarded.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Peek returns the settled value for key without triggering a load.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.settled || e.err != nil {
		return nil, false
	}
	return e.value, true
}

// Lookup is a typed wrapper around Cache.Get.
func Lookup[T any](ctx context.Context, c *Cache, key Key, loader func(ctx context.Context) (T, error), refreshInterval time.Duration) (T, error) {
	v, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return loader(ctx)
	}, refreshInterval)
	if err != nil {
		var zero T
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: key %q holds %T", string(key), v)
	}
	return t, nil
}
