package admission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semblocks/metric"
)

type admissionMetrics struct {
	admissions *prometheus.CounterVec
	duration   prometheus.Histogram
}

func newAdmissionMetrics(registry *metric.MetricsRegistry) (*admissionMetrics, error) {
	m := &admissionMetrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semblocks",
			Subsystem: "admission",
			Name:      "admissions_total",
			Help:      "Component admissions by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "semblocks",
			Subsystem: "admission",
			Name:      "duration_seconds",
			Help:      "Time spent admitting one component",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	if err := registry.RegisterCounterVec("admission", "admissions_total", m.admissions); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("admission", "duration_seconds", m.duration); err != nil {
		registry.Unregister("admission", "admissions_total")
		return nil, err
	}
	return m, nil
}

func (m *admissionMetrics) record(res Result, started time.Time) {
	if m == nil {
		return
	}
	outcome := "invalid"
	if res.Valid {
		outcome = "valid"
	}
	m.admissions.WithLabelValues(outcome).Inc()
	m.duration.Observe(time.Since(started).Seconds())
}
