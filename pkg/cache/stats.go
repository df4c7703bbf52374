package cache

import (
	"sync/atomic"
)

// Statistics tracks cache performance counters.
type Statistics struct {
	hits        int64
	misses      int64
	sets        int64
	deletes     int64
	evictions   int64
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) hit()      { atomic.AddInt64(&s.hits, 1) }
func (s *Statistics) miss()     { atomic.AddInt64(&s.misses, 1) }
func (s *Statistics) set()      { atomic.AddInt64(&s.sets, 1) }
func (s *Statistics) delete()   { atomic.AddInt64(&s.deletes, 1) }
func (s *Statistics) eviction() { atomic.AddInt64(&s.evictions, 1) }

func (s *Statistics) updateSize(size int64) {
	atomic.StoreInt64(&s.currentSize, size)
	for {
		max := atomic.LoadInt64(&s.maxSize)
		if size <= max || atomic.CompareAndSwapInt64(&s.maxSize, max, size) {
			return
		}
	}
}

// Hits returns the total number of cache hits.
func (s *Statistics) Hits() int64 { return atomic.LoadInt64(&s.hits) }

// Misses returns the total number of cache misses.
func (s *Statistics) Misses() int64 { return atomic.LoadInt64(&s.misses) }

// Sets returns the total number of set operations.
func (s *Statistics) Sets() int64 { return atomic.LoadInt64(&s.sets) }

// Deletes returns the total number of delete operations.
func (s *Statistics) Deletes() int64 { return atomic.LoadInt64(&s.deletes) }

// Evictions returns the total number of expiry evictions.
func (s *Statistics) Evictions() int64 { return atomic.LoadInt64(&s.evictions) }

// CurrentSize returns the number of entries at the last update.
func (s *Statistics) CurrentSize() int64 { return atomic.LoadInt64(&s.currentSize) }

// MaxSize returns the high-water mark of entries.
func (s *Statistics) MaxSize() int64 { return atomic.LoadInt64(&s.maxSize) }

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
