package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semblocks/metric"
)

type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semblocks", Subsystem: "cache", Name: "hits_total",
			ConstLabels: labels, Help: "Total number of cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semblocks", Subsystem: "cache", Name: "misses_total",
			ConstLabels: labels, Help: "Total number of cache misses",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semblocks", Subsystem: "cache", Name: "evictions_total",
			ConstLabels: labels, Help: "Total number of expired entries removed",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semblocks", Subsystem: "cache", Name: "size",
			ConstLabels: labels, Help: "Current number of cache entries",
		}),
	}

	service := "cache_" + prefix
	if err := registry.RegisterCounter(service, "hits", m.hits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "misses", m.misses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "evictions", m.evictions); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(service, "size", m.size); err != nil {
		return nil, err
	}
	return m, nil
}
