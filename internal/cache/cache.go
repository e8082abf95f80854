// Package cache implements the entry cache that sits in front of the
// secret backend.
//
// Reads populate the cache through GetOrLoad, which runs at most one
// loader per key at a time. A population that overlaps a Put,
// Invalidate or InvalidateAll of its key is detached: its waiters still
// receive the loaded value but it is not stored, so a stale read never
// overwrites a newer write or resurrects an invalidated entry.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/internal/metrics"
	"github.com/systmms/secretproxy/internal/secure"
)

// Loader fetches the value for a key on a miss. found=false with a nil
// error means the key is absent; nothing is cached in that case.
type Loader func(ctx context.Context) (value string, found bool, err error)

// Options configures a Cache. The zero value is a plain, non-expiring
// cache.
type Options struct {
	// TTL bounds how long an entry is served. Zero disables expiry.
	TTL time.Duration
	// ProtectMemory keeps values sealed with memguard.
	ProtectMemory bool

	Metrics *metrics.Metrics
	Logger  *logging.Logger
	Now     func() time.Time
}

type entry struct {
	plain   string
	sealed  *secure.Value
	expires time.Time
}

type flight struct {
	done  chan struct{}
	value string
	found bool
	err   error
	dirty bool
}

// Cache is a concurrency-safe key to value map with single-flight
// population.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	inflight map[string]*flight

	ttl     time.Duration
	protect bool
	metrics *metrics.Metrics
	logger  *logging.Logger
	now     func() time.Time
}

// New creates an empty cache.
func New(opts Options) *Cache {
	c := &Cache{
		entries:  make(map[string]*entry),
		inflight: make(map[string]*flight),
		ttl:      opts.TTL,
		protect:  opts.ProtectMemory,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Lookup returns the cached value for key.
func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.valueLocked(key)
	c.metrics.CacheLookup(ok)
	return v, ok
}

// GetOrLoad returns the cached value for key or populates it with load.
// Concurrent callers for the same missing key share one load. load runs
// on a context that is not cancelled with ctx; a caller whose ctx ends
// returns ctx.Err() while the load carries on for the others.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load Loader) (string, bool, error) {
	if v, ok := c.Lookup(key); ok {
		return v, true, nil
	}

	c.mu.Lock()
	if v, ok := c.valueLocked(key); ok {
		c.mu.Unlock()
		return v, true, nil
	}
	c.dropExpiredLocked(key)

	f, joined := c.inflight[key]
	if !joined {
		f = &flight{done: make(chan struct{})}
		c.inflight[key] = f
		go c.populate(context.WithoutCancel(ctx), key, f, load)
	}
	c.mu.Unlock()

	select {
	case <-f.done:
		return f.value, f.found, f.err
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func (c *Cache) populate(ctx context.Context, key string, f *flight, load Loader) {
	value, found, err := runLoader(ctx, load)

	c.mu.Lock()
	if c.inflight[key] == f {
		delete(c.inflight, key)
	}
	var outcome string
	switch {
	case err != nil:
		outcome = metrics.PopulationFailed
	case !found:
		outcome = metrics.PopulationAbsent
	case f.dirty:
		outcome = metrics.PopulationDiscarded
		c.logger.Debug("Discarding stale cache population: key = %s", key)
	default:
		outcome = metrics.PopulationStored
		c.storeLocked(key, value)
	}
	f.value, f.found, f.err = value, found, err
	c.mu.Unlock()

	c.metrics.CachePopulation(outcome)
	close(f.done)
}

func runLoader(ctx context.Context, load Loader) (value string, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, found, err = "", false, fmt.Errorf("cache loader panicked: %v", r)
		}
	}()
	return load(ctx)
}

// Put stores value under key, replacing any cached value and detaching
// any population in flight for key.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detachLocked(key)
	c.storeLocked(key, value)
}

// Invalidate removes key. Removing an absent key is a no-op.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detachLocked(key)
	c.removeLocked(key)
	c.metrics.CacheInvalidation(false)
	c.metrics.CacheEntries(len(c.entries))
}

// InvalidateAll removes every entry and detaches every population in
// flight.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.inflight {
		c.detachLocked(key)
	}
	for key := range c.entries {
		c.removeLocked(key)
	}
	c.metrics.CacheInvalidation(true)
	c.metrics.CacheEntries(0)
}

// Keys returns the keys of live entries in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if c.liveAt(e, now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return len(c.Keys())
}

// InFlight returns the number of populations currently running.
func (c *Cache) InFlight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.inflight)
}

func (c *Cache) valueLocked(key string) (string, bool) {
	e, ok := c.entries[key]
	if !ok || !c.liveAt(e, c.now()) {
		return "", false
	}
	if e.sealed == nil {
		return e.plain, true
	}
	v, err := e.sealed.Reveal()
	if err != nil {
		c.logger.Warn("Failed to open protected cache entry: key = %s: %v", key, err)
		return "", false
	}
	return v, true
}

func (c *Cache) liveAt(e *entry, now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

func (c *Cache) storeLocked(key, value string) {
	c.removeLocked(key)

	e := &entry{}
	if c.protect {
		e.sealed = secure.Seal(value)
	} else {
		e.plain = value
	}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = e
	c.metrics.CacheEntries(len(c.entries))
}

func (c *Cache) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.sealed != nil {
		e.sealed.Destroy()
	}
	delete(c.entries, key)
}

func (c *Cache) dropExpiredLocked(key string) {
	if e, ok := c.entries[key]; ok && !c.liveAt(e, c.now()) {
		c.removeLocked(key)
		c.metrics.CacheEntries(len(c.entries))
	}
}

// detachLocked marks the population for key dirty and forgets it so the
// next miss starts a fresh load.
func (c *Cache) detachLocked(key string) {
	if f, ok := c.inflight[key]; ok {
		f.dirty = true
		delete(c.inflight, key)
	}
}
