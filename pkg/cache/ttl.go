package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/semblocks/errors"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a thread-safe cache whose entries expire a fixed duration after Set.
type TTL[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	items   map[string]ttlEntry[V]
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
	now     func() time.Time

	closeOnce sync.Once
	shutdown  chan struct{}
	done      chan struct{}
}

var _ Cache[int] = (*TTL[int])(nil)

// NewTTL creates a TTL cache and starts its sweeper. A cleanupInterval <= 0
// disables the sweeper; expired entries are then only dropped on access.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration, options ...Option[V]) (*TTL[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewTTL", "ttl must be positive")
	}
	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewTTL", "metrics registration")
		}
	}

	c := &TTL[V]{
		ttl:      ttl,
		items:    make(map[string]ttlEntry[V]),
		stats:    NewStatistics(),
		metrics:  metrics,
		evictFn:  opts.evictCallback,
		now:      opts.now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.sweep(ctx, cleanupInterval)
	} else {
		close(c.done)
	}
	return c, nil
}

// Get returns a live entry.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if exists && c.now().Before(entry.expiresAt) {
		c.stats.hit()
		if c.metrics != nil {
			c.metrics.hits.Inc()
		}
		return entry.value, true
	}

	if exists {
		c.expire(key)
	}
	c.stats.miss()
	if c.metrics != nil {
		c.metrics.misses.Inc()
	}
	var zero V
	return zero, false
}

func (c *TTL[V]) expire(key string) {
	c.mu.Lock()
	entry, still := c.items[key]
	expired := still && !c.now().Before(entry.expiresAt)
	if expired {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if !expired {
		return
	}
	c.recordEvictions(1, size)
	if c.evictFn != nil {
		c.evictFn(key, entry.value)
	}
}

// Set stores value under key with a fresh expiry.
func (c *TTL[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = ttlEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.set()
	c.updateSize(size)
	return !exists, nil
}

// Delete removes key.
func (c *TTL[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.items[key]
	delete(c.items, key)
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.stats.delete()
		c.updateSize(size)
		if c.evictFn != nil {
			c.evictFn(key, entry.value)
		}
	}
	return exists, nil
}

// Clear removes all entries.
func (c *TTL[V]) Clear() error {
	c.mu.Lock()
	old := c.items
	c.items = make(map[string]ttlEntry[V])
	c.mu.Unlock()

	c.updateSize(0)
	if c.evictFn != nil {
		for key, entry := range old {
			c.evictFn(key, entry.value)
		}
	}
	return nil
}

// Size returns the number of stored entries, including expired ones not yet swept.
func (c *TTL[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the keys of live entries.
func (c *TTL[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	keys := make([]string, 0, len(c.items))
	for key, entry := range c.items {
		if now.Before(entry.expiresAt) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Stats returns the cache statistics.
func (c *TTL[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the sweeper.
func (c *TTL[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cache sweeper to finish")
	}
}

func (c *TTL[V]) sweep(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *TTL[V]) removeExpired() {
	now := c.now()
	expired := make(map[string]V)

	c.mu.Lock()
	for key, entry := range c.items {
		if !now.Before(entry.expiresAt) {
			expired[key] = entry.value
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	c.recordEvictions(len(expired), size)
	if c.evictFn != nil {
		for key, value := range expired {
			c.evictFn(key, value)
		}
	}
}

func (c *TTL[V]) recordEvictions(n, size int) {
	for i := 0; i < n; i++ {
		c.stats.eviction()
	}
	if c.metrics != nil {
		c.metrics.evictions.Add(float64(n))
	}
	c.updateSize(size)
}

func (c *TTL[V]) updateSize(size int) {
	c.stats.updateSize(int64(size))
	if c.metrics != nil {
		c.metrics.size.Set(float64(size))
	}
}
