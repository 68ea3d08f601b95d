package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/slicestore/pkg/store"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "slicestore").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "slicestore",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	actionsTotal     *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchErrors   *prometheus.CounterVec
	slices           prometheus.Gauge
	pendingKeys      prometheus.Gauge
}

type metricsKey struct {
	registry  prometheus.Registerer
	namespace string
	subsystem string
}

// Metrics are registered once per registry, namespace and subsystem, so every
// store built with the same three shares them. Const labels and buckets are
// taken from the first configuration.
var (
	metricsMu    sync.Mutex
	metricsByKey = map[metricsKey]*metrics{}
)

func metricsFor(config MetricsConfig) *metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	key := metricsKey{config.Registry, config.Namespace, config.Subsystem}
	if m, ok := metricsByKey[key]; ok {
		return m
	}
	m := initMetrics(config)
	metricsByKey[key] = m
	return m
}

// UnregisteredKey is the key label used for actions on keys with no slice.
const UnregisteredKey = "_unregistered"

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "actions_total",
			Help:        "Total number of dispatched actions",
			ConstLabels: config.ConstLabels,
		}, []string{"key", "kind", "status"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Action dispatch duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		dispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_errors_total",
			Help:        "Total number of failed dispatches by error type",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "error_type"}),

		slices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "slices",
			Help:        "Number of slices in the store",
			ConstLabels: config.ConstLabels,
		}),

		pendingKeys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pending_keys",
			Help:        "Number of rehydrated keys waiting for a slice",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Prometheus creates middleware that collects metrics for dispatched actions.
//
// Metrics collected:
//   - slicestore_actions_total: Counter of actions by key, kind and status.
//     Keys with no slice are counted under "_unregistered".
//   - slicestore_dispatch_duration_seconds: Histogram of dispatch duration
//   - slicestore_dispatch_errors_total: Counter of failures by error type
//   - slicestore_slices: Gauge of slices in the store
//   - slicestore_pending_keys: Gauge of rehydrated keys without a slice
//
// Example:
//
//	reg := store.NewRegistry(
//	    store.WithMiddleware(middleware.Prometheus(middleware.WithNamespace("myapp"))),
//	)
func Prometheus(opts ...MetricsOption) store.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	m := metricsFor(config)

	return func(s *store.Store, next store.Next) store.Next {
		m.observeStore(s)

		return func(ctx context.Context, a store.Action) error {
			kind := a.Kind.String()
			start := time.Now()

			err := next(ctx, a)

			m.dispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

			status := "success"
			if err != nil {
				status = "error"
				m.dispatchErrors.WithLabelValues(kind, categorizeError(err)).Inc()
			}
			m.actionsTotal.WithLabelValues(keyLabel(s, a.Key), kind, status).Inc()
			m.observeStore(s)

			return err
		}
	}
}

// keyLabel bounds the key label to registered slices.
func keyLabel(s *store.Store, key string) string {
	if key == "" {
		return ""
	}
	if _, ok := s.Slice(key); !ok {
		return UnregisteredKey
	}
	return key
}

func (m *metrics) observeStore(s *store.Store) {
	m.slices.Set(float64(len(s.Keys())))
	m.pendingKeys.Set(float64(len(s.PendingKeys())))
}

// categorizeError maps an error to a low-cardinality label.
func categorizeError(err error) string {
	var mismatch *store.TypeMismatchError
	switch {
	case errors.Is(err, store.ErrUnregisteredKey):
		return "missing_key"
	case errors.As(err, &mismatch):
		return "type_mismatch"
	case errors.Is(err, store.ErrNotMergeable), errors.Is(err, store.ErrInvalidPatch):
		return "invalid_merge"
	case errors.Is(err, store.ErrNotSerializable):
		return "not_serializable"
	case errors.Is(err, store.ErrStoreClosed):
		return "closed"
	case errors.Is(err, ErrPanic):
		return "panic"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
