package concur

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Recompute produces the value for a cache miss. An error from Recompute is
// propagated unchanged by Get and is never cached.
type Recompute[V any] func() (V, error)

// ConcurrentCacheConfig controls a ConcurrentCache's backing store path and
// default entry lifetime.
type ConcurrentCacheConfig struct {
	// BackingStorePath is the append-only write-through log. It is created
	// if absent.
	BackingStorePath string

	// DefaultTTL is how long an entry lives after a put before it is
	// treated as expired. Must be > 0.
	DefaultTTL time.Duration

	// Clock supplies time for expiration checks and backing-store
	// timestamps. Defaults to clockz.RealClock.
	Clock clockz.Clock
}

func (c ConcurrentCacheConfig) normalize() ConcurrentCacheConfig {
	if c.Clock == nil {
		c.Clock = clockz.RealClock
	}
	return c
}

// ConcurrentCache maps keys to values with time-based expiration,
// request coalescing (at most one concurrent recompute per key), and
// write-through to an append-only backing log.
//
// Lock ordering, narrowest to widest blast radius: the per-key exclusion
// table lock guards only the map of per-key locks; an individual per-key
// lock guards only that key's recompute; the cache's RWMutex guards the
// value map; the backing store's own lock guards the log file. A goroutine
// never holds a wider lock while acquiring a narrower one in this list, so
// they cannot deadlock against each other.
type ConcurrentCache[K comparable, V any] struct {
	config ConcurrentCacheConfig
	store  *backingStore
	obs    *cacheObservability

	mu   sync.RWMutex
	data map[K]cacheEntry[V]

	keyLocksMu sync.Mutex
	keyLocks   map[K]*sync.Mutex

	// poisoned latches true if a previous Get/Put panicked while holding
	// mu or a per-key lock. Go's RWMutex has no poisoning concept of its
	// own (unlike the scheduler's poisonableMutex, which wraps a plain
	// sync.Mutex); this flag ports the same "fatal to further use, not to
	// the process" contract at the cache level instead of per-primitive.
	poisoned atomic.Bool
}

// NewConcurrentCache creates a cache backed by the given write-through log
// path and default TTL, ensuring the backing store is openable.
func NewConcurrentCache[K comparable, V any](config ConcurrentCacheConfig) (*ConcurrentCache[K, V], error) {
	config = config.normalize()

	store, err := newBackingStore(config.BackingStorePath, config.Clock)
	if err != nil {
		return nil, err
	}

	return &ConcurrentCache[K, V]{
		config:   config,
		store:    store,
		obs:      newCacheObservability(),
		data:     make(map[K]cacheEntry[V]),
		keyLocks: make(map[K]*sync.Mutex),
	}, nil
}

// Get returns a cached value if present and unexpired; otherwise it invokes
// recompute at most once per key across all concurrent callers, installs
// the result with a fresh TTL, and returns it. An error from recompute is
// returned unchanged and nothing is cached.
func (c *ConcurrentCache[K, V]) Get(ctx context.Context, key K, recompute Recompute[V]) (V, error) {
	if c.poisoned.Load() {
		var zero V
		return zero, &CacheError{Kind: ErrKindLockPoisoned, Key: fmt.Sprintf("%v", key)}
	}

	ctx, span := c.obs.tracer.StartSpan(ctx, SpanCacheGet)
	defer span.Finish()

	if v, ok := c.fastPathLookup(key); ok {
		span.SetTag(TagCacheOutcome, "hit")
		c.obs.metrics.Counter(MetricCacheHits).Inc()
		return v, nil
	}

	keyLock := c.keyLockFor(key)
	keyLock.Lock()
	defer keyLock.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.poisoned.Store(true)
			panic(r)
		}
	}()

	// Double-check: another goroutine may have finished recomputing this
	// key while we were waiting for the per-key lock.
	if v, ok := c.fastPathLookup(key); ok {
		span.SetTag(TagCacheOutcome, "hit-after-wait")
		c.obs.metrics.Counter(MetricCacheHits).Inc()
		c.obs.metrics.Counter(MetricCacheRecomputesCoalesced).Inc()
		return v, nil
	}

	span.SetTag(TagCacheOutcome, "miss")
	c.obs.metrics.Counter(MetricCacheMisses).Inc()

	_, recomputeSpan := c.obs.tracer.StartSpan(ctx, SpanCacheRecompute)
	c.obs.metrics.Counter(MetricCacheRecomputes).Inc()
	value, err := recompute()
	recomputeSpan.Finish()
	if err != nil {
		span.SetTag(TagCacheOutcome, "recompute-error")
		capitan.Warn(ctx, SignalCacheRecomputeError,
			FieldCacheKey.Field(fmt.Sprintf("%v", key)),
			FieldError.Field(err.Error()),
		)
		var zero V
		return zero, err
	}

	if err := c.put(ctx, key, value); err != nil {
		var zero V
		return zero, err
	}
	return value, nil
}

// fastPathLookup takes only the shared read lock; it is the hot path for
// repeated reads of a live entry.
func (c *ConcurrentCache[K, V]) fastPathLookup(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || entry.expired(c.config.Clock.Now()) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// keyLockFor returns the per-key exclusion lock, creating it under the
// narrow key-lock-table mutex if this is the first caller to touch key.
func (c *ConcurrentCache[K, V]) keyLockFor(key K) *sync.Mutex {
	c.keyLocksMu.Lock()
	defer c.keyLocksMu.Unlock()

	l, ok := c.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.keyLocks[key] = l
	}
	return l
}

// Put installs value under key with a fresh TTL and appends a write-through
// record to the backing store.
func (c *ConcurrentCache[K, V]) Put(ctx context.Context, key K, value V) error {
	return c.put(ctx, key, value)
}

func (c *ConcurrentCache[K, V]) put(ctx context.Context, key K, value V) (err error) {
	if c.poisoned.Load() {
		return &CacheError{Kind: ErrKindLockPoisoned, Key: fmt.Sprintf("%v", key)}
	}

	_, span := c.obs.tracer.StartSpan(ctx, SpanCachePut)
	defer span.Finish()

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.poisoned.Store(true)
				capitan.Error(ctx, SignalCacheLockPoisoned,
					FieldCacheKey.Field(fmt.Sprintf("%v", key)),
					FieldError.Field(fmt.Sprintf("%v", r)),
				)
				err = &CacheError{Kind: ErrKindLockPoisoned, Key: fmt.Sprintf("%v", key)}
			}
		}()
		c.mu.Lock()
		defer c.mu.Unlock()
		c.data[key] = cacheEntry[V]{
			value:     value,
			expiresAt: c.config.Clock.Now().Add(c.config.DefaultTTL),
		}
	}()
	if err != nil {
		return err
	}

	if err := c.store.append(debugRepr(key), debugRepr(value)); err != nil {
		capitan.Error(ctx, SignalCacheBackingStoreIO,
			FieldCacheKey.Field(fmt.Sprintf("%v", key)),
			FieldError.Field(err.Error()),
		)
		return &CacheError{Kind: ErrKindBackingStoreIO, Key: fmt.Sprintf("%v", key), Err: err}
	}
	return nil
}

// Size returns the current number of entries, including any that are
// expired but not yet collected by the garbage collector.
func (c *ConcurrentCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// CleanupExpired removes every expired entry immediately and returns the
// count removed.
func (c *ConcurrentCache[K, V]) CleanupExpired() int {
	now := c.config.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, entry := range c.data {
		if entry.expired(now) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// Metrics returns the metrics registry backing this cache.
func (c *ConcurrentCache[K, V]) Metrics() *metricz.Registry { return c.obs.metrics }

// Tracer returns the tracer backing this cache.
func (c *ConcurrentCache[K, V]) Tracer() *tracez.Tracer { return c.obs.tracer }

// OnGCSweep registers a handler invoked after each garbage-collection pass.
func (c *ConcurrentCache[K, V]) OnGCSweep(handler func(context.Context, GCSweepEvent) error) error {
	_, err := c.obs.gcSweep.Hook(EventGCSweep, handler)
	return err
}

// Close releases observability resources. It does not stop a garbage
// collector started with StartGarbageCollector; cancel that ctx instead.
func (c *ConcurrentCache[K, V]) Close() error {
	c.obs.close()
	return nil
}
