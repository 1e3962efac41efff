package cache

import (
	"context"
	"sync"
	"time"
)

// FetchFunc loads the value for a key from the backing source.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache is a read-through cache with a freshness window and a longer
// retention window. Within the freshness window Get returns the cached
// value without touching the source. After it, the value is refetched;
// if the refetch fails (after one retry) a retained stale value is
// served instead of the error. Concurrent Gets for the same key share
// one fetch.
type Cache[K comparable, V any] struct {
	fresh  time.Duration
	retain time.Duration
	fetch  FetchFunc[K, V]

	mu       sync.Mutex
	entries  map[K]*entry[V]
	inflight map[K]*call[V]

	now func() time.Time // test hook
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

type call[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// New creates a cache. retain must be >= fresh; values older than retain
// are never served.
func New[K comparable, V any](fresh, retain time.Duration, fetch FetchFunc[K, V]) *Cache[K, V] {
	if retain < fresh {
		retain = fresh
	}
	return &Cache[K, V]{
		fresh:    fresh,
		retain:   retain,
		fetch:    fetch,
		entries:  make(map[K]*entry[V]),
		inflight: make(map[K]*call[V]),
		now:      time.Now,
	}
}

// Get returns the value for key, fetching through to the source when the
// cached value is missing or no longer fresh.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	now := c.now()

	if e, ok := c.entries[key]; ok && now.Sub(e.fetchedAt) < c.fresh {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}

	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.value, cl.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	cl := &call[V]{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	value, err := c.fetch(ctx, key)
	if err != nil {
		// One retry before giving up on the source.
		value, err = c.fetch(ctx, key)
	}

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		c.entries[key] = &entry[V]{value: value, fetchedAt: c.now()}
	} else if e, ok := c.entries[key]; ok && c.now().Sub(e.fetchedAt) < c.retain {
		// Serve the retained stale value instead of the fetch error.
		value, err = e.value, nil
	} else {
		delete(c.entries, key)
	}
	cl.value, cl.err = value, err
	c.mu.Unlock()

	close(cl.done)
	return value, err
}

// Invalidate drops the cached value for key, forcing the next Get to fetch.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops all cached values.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]*entry[V])
	c.mu.Unlock()
}

// SetClock overrides the time source. Test use only.
func (c *Cache[K, V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
