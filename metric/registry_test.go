package metric

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semerrors "github.com/c360/semblocks/errors"
)

func gathered(t *testing.T, r *MetricsRegistry, name string) bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return true
		}
	}
	return false
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.Same(t, registry.Metrics, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterKinds(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "t_counter", Help: "c"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "t_gauge", Help: "g"})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "t_hist", Help: "h"})
	cvec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "t_cvec", Help: "cv"}, []string{"l"})
	gvec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "t_gvec", Help: "gv"}, []string{"l"})
	hvec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "t_hvec", Help: "hv"}, []string{"l"})

	require.NoError(t, registry.RegisterCounter("svc", "counter", counter))
	require.NoError(t, registry.RegisterGauge("svc", "gauge", gauge))
	require.NoError(t, registry.RegisterHistogram("svc", "hist", hist))
	require.NoError(t, registry.RegisterCounterVec("svc", "cvec", cvec))
	require.NoError(t, registry.RegisterGaugeVec("svc", "gvec", gvec))
	require.NoError(t, registry.RegisterHistogramVec("svc", "hvec", hvec))

	counter.Inc()
	gauge.Set(3)
	hist.Observe(0.1)
	cvec.WithLabelValues("a").Inc()
	gvec.WithLabelValues("a").Set(1)
	hvec.WithLabelValues("a").Observe(0.2)

	for _, name := range []string{"t_counter", "t_gauge", "t_hist", "t_cvec", "t_gvec", "t_hvec"} {
		assert.True(t, gathered(t, registry, name), name)
	}
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "d"})
	second := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "d"})

	require.NoError(t, registry.RegisterCounter("svc", "dup", first))

	err := registry.RegisterCounter("svc", "dup", second)
	require.Error(t, err)
	assert.True(t, semerrors.IsInvalid(err))

	// Same prometheus name under a different key conflicts inside prometheus.
	err = registry.RegisterCounter("other", "dup", second)
	require.Error(t, err)
	assert.True(t, semerrors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "gone", Help: "g"})

	require.NoError(t, registry.RegisterGauge("svc", "gone", gauge))
	assert.True(t, registry.Unregister("svc", "gone"))
	assert.False(t, registry.Unregister("svc", "gone"))

	// The key is free again.
	require.NoError(t, registry.RegisterGauge("svc", "gone", gauge))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := prometheus.NewCounter(prometheus.CounterOpts{
				Name: "concurrent_total",
				Help: "c",
				ConstLabels: prometheus.Labels{
					"n": string(rune('a' + i)),
				},
			})
			errs <- registry.RegisterCounter("svc", string(rune('a'+i)), c)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMetrics_Recorders(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordServiceStatus("semblocks", 2)
	m.RecordHealthStatus("nats", true)
	m.RecordError("pagestore", "transient")
	m.RecordNATSStatus(true)
	m.RecordNATSReconnect()
	m.RecordStoreOperation("pagestore", "load", time.Now(), nil)
	m.RecordStoreOperation("pagestore", "load", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ServiceStatus.WithLabelValues("semblocks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("nats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("pagestore", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSReconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("pagestore", "load", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("pagestore", "load", "error")))
}

func TestMetricsRegistry_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordNATSStatus(true)

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), "semblocks_nats_connected 1"))
}
