package middleware

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/slicestore/pkg/store"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestPrometheusRecordsSuccessAndError(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newRegistry(Prometheus(WithRegistry(reg)))
	_, _ = store.CreateSlice(r, "count", 0)
	st := r.Store()

	if err := st.Set(context.Background(), "count", 1); err != nil {
		t.Fatal(err)
	}
	if err := st.Merge(context.Background(), "count", store.Patch{"x": 1}); err == nil {
		t.Fatal("expected merge on a number to fail")
	}

	m := metricsFor(MetricsConfig{Registry: reg, Namespace: "slicestore"})
	if got := metricCounterValue(t, m.actionsTotal.WithLabelValues("count", "set", "success")); got != 1 {
		t.Errorf("actions_total(set, success)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.actionsTotal.WithLabelValues("count", "merge", "error")); got != 1 {
		t.Errorf("actions_total(merge, error)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.dispatchErrors.WithLabelValues("merge", "invalid_merge")); got != 1 {
		t.Errorf("dispatch_errors_total(invalid_merge)=%v, want 1", got)
	}
	if got := metricHistogramCount(t, m.dispatchDuration.WithLabelValues("set")); got != 1 {
		t.Errorf("dispatch_duration_seconds(set) count=%d, want 1", got)
	}
	if got := metricGaugeValue(t, m.slices); got != 1 {
		t.Errorf("slices=%v, want 1", got)
	}
}

func TestPrometheusSharesMetricsPerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	// A second store on the same Prometheus registry must not panic with a
	// duplicate registration.
	for i := 0; i < 2; i++ {
		r := newRegistry(Prometheus(WithRegistry(reg), WithNamespace("shared")))
		_, _ = store.CreateSlice(r, "n", 0)
		if err := r.Store().Set(context.Background(), "n", 1); err != nil {
			t.Fatal(err)
		}
	}

	m := metricsFor(MetricsConfig{Registry: reg, Namespace: "shared"})
	if got := metricCounterValue(t, m.actionsTotal.WithLabelValues("n", "set", "success")); got != 2 {
		t.Errorf("actions_total=%v, want 2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "shared_actions_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected shared_actions_total to be registered")
	}
}

func TestPrometheusBoundsUnregisteredKeys(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newRegistry(Prometheus(WithRegistry(reg), WithNamespace("bounded")))
	st := r.Store()

	for _, key := range []string{"ghost-1", "ghost-2", "ghost-3"} {
		if err := st.Reset(context.Background(), key); err == nil {
			t.Fatalf("expected reset of %q to fail", key)
		}
	}

	m := metricsFor(MetricsConfig{Registry: reg, Namespace: "bounded"})
	if got := metricCounterValue(t, m.actionsTotal.WithLabelValues(UnregisteredKey, "reset", "error")); got != 3 {
		t.Errorf("actions_total(%s)=%v, want 3", UnregisteredKey, got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() == "bounded_actions_total" && len(f.GetMetric()) != 1 {
			t.Errorf("expected one actions_total series, got %d", len(f.GetMetric()))
		}
	}
}

func TestPrometheusNamespacesOnSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newRegistry(Prometheus(WithRegistry(reg), WithNamespace("a")))
	b := newRegistry(Prometheus(WithRegistry(reg), WithNamespace("b")))
	for _, r := range []*store.Registry{a, b} {
		_, _ = store.CreateSlice(r, "n", 0)
		if err := r.Store().Set(context.Background(), "n", 1); err != nil {
			t.Fatal(err)
		}
	}

	for _, ns := range []string{"a", "b"} {
		m := metricsFor(MetricsConfig{Registry: reg, Namespace: ns})
		if got := metricCounterValue(t, m.actionsTotal.WithLabelValues("n", "set", "success")); got != 1 {
			t.Errorf("%s_actions_total=%v, want 1", ns, got)
		}
	}
}
