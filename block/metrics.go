package block

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semblocks/metric"
)

type registryMetrics struct {
	kinds         *prometheus.GaugeVec
	registrations *prometheus.CounterVec
}

func newRegistryMetrics(registry *metric.MetricsRegistry) (*registryMetrics, error) {
	m := &registryMetrics{
		kinds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "semblocks",
			Subsystem: "block_registry",
			Name:      "kinds",
			Help:      "Registered block kinds by source",
		}, []string{"source"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semblocks",
			Subsystem: "block_registry",
			Name:      "registrations_total",
			Help:      "Registration attempts by source and outcome",
		}, []string{"source", "outcome"}),
	}
	if err := registry.RegisterGaugeVec("block_registry", "kinds", m.kinds); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("block_registry", "registrations_total", m.registrations); err != nil {
		registry.Unregister("block_registry", "kinds")
		return nil, err
	}
	return m, nil
}

func (m *registryMetrics) observe(kinds map[string]*Descriptor) {
	if m == nil {
		return
	}
	counts := map[Source]int{SourceBuiltIn: 0, SourceCustom: 0}
	for _, d := range kinds {
		counts[d.Source]++
	}
	for source, n := range counts {
		m.kinds.WithLabelValues(string(source)).Set(float64(n))
	}
}

func (m *registryMetrics) registration(source Source, outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(string(source), outcome).Inc()
}
