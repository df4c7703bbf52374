package render

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semblocks/metric"
)

type renderMetrics struct {
	nodes    *prometheus.CounterVec
	duration prometheus.Histogram
	pending  prometheus.Gauge
}

func newRenderMetrics(registry *metric.MetricsRegistry) (*renderMetrics, error) {
	m := &renderMetrics{
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semblocks",
			Subsystem: "render",
			Name:      "nodes_total",
			Help:      "Rendered nodes by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "semblocks",
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Time spent in one render pass, excluding deferred nodes",
			Buckets:   prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semblocks",
			Subsystem: "render",
			Name:      "deferred_pending",
			Help:      "Deferred nodes currently rendering",
		}),
	}
	if err := registry.RegisterCounterVec("render", "nodes_total", m.nodes); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("render", "duration_seconds", m.duration); err != nil {
		registry.Unregister("render", "nodes_total")
		return nil, err
	}
	if err := registry.RegisterGauge("render", "deferred_pending", m.pending); err != nil {
		registry.Unregister("render", "nodes_total")
		registry.Unregister("render", "duration_seconds")
		return nil, err
	}
	return m, nil
}

func (m *renderMetrics) node(outcome string) {
	if m == nil {
		return
	}
	m.nodes.WithLabelValues(outcome).Inc()
}

func (m *renderMetrics) observeRender(started time.Time) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(started).Seconds())
}

func (m *renderMetrics) deferredStarted() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

func (m *renderMetrics) deferredFinished() {
	if m == nil {
		return
	}
	m.pending.Dec()
}
