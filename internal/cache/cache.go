package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/almatkai/woolet-sub004/internal/logger"
	"github.com/almatkai/woolet-sub004/internal/metrics"
)

const (
	// DefaultCapacity bounds the number of tracked cache entries.
	DefaultCapacity = 1000
	// DefaultBaseTTL is the staleness baseline; hard expiry is twice this,
	// independent of the per-call TTL.
	DefaultBaseTTL = 24 * time.Hour
)

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Size      int     `json:"size"`
	HitRate   float64 `json:"hit_rate"`
}

// Options configures a Cache.
type Options struct {
	Capacity int
	BaseTTL  time.Duration
}

// Cache is a stale-while-revalidate, LRU-bounded cache layered over a
// remote key-value store.
//
// The backing store provides atomic single-key operations only; the
// evict-then-write sequence and the background refresh are not
// linearizable against concurrent callers, and two concurrent misses on
// the same key may both invoke their fetch function.
type Cache struct {
	store      Store
	capacity   int
	hardExpiry time.Duration

	mu        sync.Mutex
	lastTouch map[string]time.Time
	tags      map[string]struct{}

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache over the given backing store.
func New(store Store, opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.BaseTTL <= 0 {
		opts.BaseTTL = DefaultBaseTTL
	}
	return &Cache{
		store:      store,
		capacity:   opts.Capacity,
		hardExpiry: 2 * opts.BaseTTL,
		lastTouch:  make(map[string]time.Time),
		tags:       make(map[string]struct{}),
	}
}

// NewFromConfig creates a cache with the configured backing store.
func NewFromConfig(backend, redisAddr, redisPassword string, redisDB int, opts Options) (*Cache, error) {
	var store Store
	switch strings.ToLower(backend) {
	case "memory", "":
		store = NewMemoryStore()
	case "redis":
		rs, err := NewRedisStore(redisAddr, redisPassword, redisDB)
		if err != nil {
			return nil, err
		}
		store = rs
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", backend)
	}
	return New(store, opts), nil
}

// FetchFunc produces a fresh value for a cache key.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// GetOrFetch returns the cached value for key, fetching it when absent or
// too old to serve. Semantics:
//
//   - absent, or older than the hard expiry: miss; fetch, store, return.
//   - younger than ttl: hit; returned without fetching.
//   - between ttl and the hard expiry: hit; the stale value is returned
//     immediately and a background refresh is started. The caller never
//     waits on the refresh and never sees its failure.
//   - fetch failure on the miss path: the previous entry, if any exists at
//     all, is returned instead of the error.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error) {
	return GetOrFetchTagged(ctx, c, key, ttl, "", fetch)
}

// GetOrFetchTagged is GetOrFetch with a tag recorded in the refresh
// worklist alongside the entry.
func GetOrFetchTagged[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, tag string, fetch FetchFunc[T]) (T, error) {
	start := time.Now()
	entry := c.lookup(ctx, key)
	now := time.Now()

	if entry != nil && entry.Age(now) < c.hardExpiry {
		var cached T
		if err := json.Unmarshal(entry.Payload, &cached); err == nil {
			c.hits.Add(1)
			metrics.RecordCacheHit()
			logger.LogCacheOperation(ctx, "get_or_fetch", key, true, time.Since(start))

			if entry.Age(now) < ttl {
				c.touch(ctx, key, entry, now)
				return cached, nil
			}

			// Stale but still serveable: hand the caller the old value and
			// revalidate off the request path.
			c.touch(ctx, key, entry, now)
			c.refreshAsync(key, ttl, tag, wrapFetch(fetch))
			return cached, nil
		}
		// Undecodable payload counts as a miss below.
	}

	c.misses.Add(1)
	metrics.RecordCacheMiss()
	logger.LogCacheOperation(ctx, "get_or_fetch", key, false, time.Since(start))

	fresh, err := fetch(ctx)
	if err != nil {
		// Serve whatever we still have, even past hard expiry. Only when
		// nothing at all is cached does the fetch error reach the caller.
		if entry != nil {
			var stale T
			if uerr := json.Unmarshal(entry.Payload, &stale); uerr == nil {
				logger.GetLogger().WithField("key", key).WithField("error", err.Error()).
					Warn("Fetch failed, serving stale cache entry")
				return stale, nil
			}
		}
		var zero T
		return zero, err
	}

	if werr := c.writeValue(ctx, key, fresh, ttl, tag); werr != nil {
		logger.GetLogger().WithField("key", key).WithField("error", werr.Error()).
			Warn("Failed to write cache entry")
	}
	return fresh, nil
}

// wrapFetch erases the fetch function's type so the background refresh
// path can share one implementation.
func wrapFetch[T any](fetch FetchFunc[T]) func(ctx context.Context) (json.RawMessage, error) {
	return func(ctx context.Context) (json.RawMessage, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
}

// lookup reads and decodes the raw entry for key. A read error on the
// backing store is logged and treated as a miss.
func (c *Cache) lookup(ctx context.Context, key string) *Entry {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if err != ErrKeyNotFound {
			logger.GetLogger().WithField("key", key).WithField("error", err.Error()).
				Warn("Cache store read failed")
		}
		return nil
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logger.GetLogger().WithField("key", key).WithField("error", err.Error()).
			Warn("Discarding undecodable cache entry")
		return nil
	}
	return &entry
}

// touch bumps the entry's access time in both the store and the LRU index.
func (c *Cache) touch(ctx context.Context, key string, entry *Entry, now time.Time) {
	entry.LastAccessedAt = now

	data, err := json.Marshal(entry)
	if err == nil {
		if serr := c.store.Set(ctx, key, string(data)); serr != nil {
			logger.GetLogger().WithField("key", key).WithField("error", serr.Error()).
				Warn("Failed to bump cache entry access time")
		}
	}

	c.mu.Lock()
	c.lastTouch[key] = now
	c.mu.Unlock()
}

// writeValue marshals and stores a freshly fetched value.
func (c *Cache) writeValue(ctx context.Context, key string, value any, ttl time.Duration, tag string) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload: %w", err)
	}
	return c.writeRaw(ctx, key, payload, ttl, tag)
}

// writeRaw evicts under LRU pressure, then stores the entry and indexes it.
func (c *Cache) writeRaw(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration, tag string) error {
	c.evictIfNeeded(ctx)

	now := time.Now()
	entry := Entry{
		Payload:        payload,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTLSeconds:     int64(ttl / time.Second),
		Tag:            tag,
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	c.mu.Lock()
	c.lastTouch[key] = now
	if tag != "" {
		c.tags[tag] = struct{}{}
	}
	metrics.CacheSize.Set(float64(len(c.lastTouch)))
	c.mu.Unlock()

	return nil
}

// evictIfNeeded removes the least-recently-touched entries so that one
// more write fits within capacity. Runs synchronously before every write.
func (c *Cache) evictIfNeeded(ctx context.Context) {
	c.mu.Lock()
	if len(c.lastTouch) < c.capacity {
		c.mu.Unlock()
		return
	}

	excess := len(c.lastTouch) - c.capacity + 1
	type touched struct {
		key string
		at  time.Time
	}
	entries := make([]touched, 0, len(c.lastTouch))
	for k, at := range c.lastTouch {
		entries = append(entries, touched{key: k, at: at})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].at.Before(entries[j].at)
	})

	victims := make([]string, 0, excess)
	for i := 0; i < excess && i < len(entries); i++ {
		victims = append(victims, entries[i].key)
		delete(c.lastTouch, entries[i].key)
	}
	c.evictions.Add(uint64(len(victims)))
	metrics.CacheSize.Set(float64(len(c.lastTouch)))
	c.mu.Unlock()

	if err := c.store.Delete(ctx, victims...); err != nil {
		logger.GetLogger().WithField("keys", len(victims)).WithField("error", err.Error()).
			Warn("Failed to delete evicted cache entries from store")
	}
	metrics.RecordCacheEvictions(len(victims))
}

// refreshAsync revalidates key off the request path. The triggering call
// has already returned by the time this runs; success is only observable
// on the next read, failure only in logs and metrics.
func (c *Cache) refreshAsync(key string, ttl time.Duration, tag string, fetch func(ctx context.Context) (json.RawMessage, error)) {
	go func() {
		ctx := context.Background()
		payload, err := fetch(ctx)
		if err != nil {
			metrics.RecordBackgroundRefresh(false)
			logger.LogBackgroundRefresh(key, err)
			return
		}
		if err := c.writeRaw(ctx, key, payload, ttl, tag); err != nil {
			metrics.RecordBackgroundRefresh(false)
			logger.LogBackgroundRefresh(key, err)
			return
		}
		metrics.RecordBackgroundRefresh(true)
		logger.LogBackgroundRefresh(key, nil)
	}()
}

// Invalidate removes one key from the store and the LRU index.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.lastTouch, key)
	metrics.CacheSize.Set(float64(len(c.lastTouch)))
	c.mu.Unlock()

	return c.store.Delete(ctx, key)
}

// InvalidatePattern removes every key with the given prefix.
func (c *Cache) InvalidatePattern(ctx context.Context, prefix string) error {
	c.mu.Lock()
	var matched []string
	for k := range c.lastTouch {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	for _, k := range matched {
		delete(c.lastTouch, k)
	}
	metrics.CacheSize.Set(float64(len(c.lastTouch)))
	c.mu.Unlock()

	if len(matched) == 0 {
		return nil
	}
	return c.store.Delete(ctx, matched...)
}

// ClearAll wipes the store, the LRU index, the tag set and the counters.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.lastTouch))
	for k := range c.lastTouch {
		keys = append(keys, k)
	}
	c.lastTouch = make(map[string]time.Time)
	c.tags = make(map[string]struct{})
	c.mu.Unlock()

	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	metrics.CacheSize.Set(0)

	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	size := len(c.lastTouch)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}
	return Stats{
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		Size:      size,
		HitRate:   hitRate,
	}
}

// RefreshQueue returns the tags recorded so far, sorted. The set is
// additive only; it is a worklist for periodic refresh, not an eviction
// input.
func (c *Cache) RefreshQueue() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.tags))
	for tag := range c.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Close closes the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}
