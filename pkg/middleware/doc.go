// Package middleware provides store middleware for production deployments.
//
// This package includes:
//   - OpenTelemetry tracing of every dispatched action
//   - Prometheus metrics for dispatch counts, latency and slice counts
//   - Structured action logging with log/slog
//   - Panic recovery for middleware and reducers
//
// Install them when creating the registry:
//
//	reg := store.NewRegistry(
//	    store.WithMiddleware(
//	        middleware.Recover(logger),
//	        middleware.Logger(logger),
//	        middleware.OpenTelemetry(),
//	        middleware.Prometheus(middleware.WithNamespace("myapp")),
//	    ),
//	)
//
// Then expose metrics:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Context Propagation
//
// OpenTelemetry passes the span context down the chain, so middleware
// installed after it and store subscribers started from it inherit the
// trace:
//
//	func Audit(s *store.Store, next store.Next) store.Next {
//	    return func(ctx context.Context, a store.Action) error {
//	        middleware.SpanFromContext(ctx).AddEvent("audit")
//	        return next(ctx, a)
//	    }
//	}
package middleware
