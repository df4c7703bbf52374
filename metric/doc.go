// Package metric owns the process Prometheus registry.
//
// Core platform metrics (service status, health, store operations, NATS
// connectivity) are registered at construction. Domain packages register their
// own collectors under a service name through MetricsRegistrar so that a
// duplicate registration surfaces as an Invalid error instead of a panic:
//
//	reg := metric.NewMetricsRegistry()
//	kinds := prometheus.NewGaugeVec(opts, []string{"source"})
//	if err := reg.RegisterGaugeVec("block", "registered_kinds", kinds); err != nil {
//	    return err
//	}
//
// Handler exposes everything in the Prometheus text format for /metrics.
package metric
