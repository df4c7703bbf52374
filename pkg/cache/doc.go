// Package cache provides a generic, thread-safe TTL cache.
//
// Entries expire a fixed duration after they were written. Expired entries are
// dropped lazily on Get and periodically by a background sweeper that stops
// when the context passed to NewTTL is cancelled or Close is called.
//
// Statistics are always collected; Prometheus metrics are opt-in through
// WithMetrics. The tenant store uses this cache to hold one feature snapshot per
// tenant so that a render pass never waits on Redis twice for the same tenant.
package cache
