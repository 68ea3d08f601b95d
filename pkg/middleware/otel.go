package middleware

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/slicestore/pkg/store"
)

const defaultTracerName = "slicestore"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "slicestore").
	TracerName string

	// TracerProvider supplies the tracer.
	// Default: the global provider from otel.GetTracerProvider.
	TracerProvider trace.TracerProvider

	// IncludePayloadType records the Go type of the action payload.
	IncludePayloadType bool

	// Filter determines which actions to trace.
	// If nil, all actions are traced.
	Filter func(a store.Action) bool

	// AttributeExtractor adds custom attributes for each traced action.
	AttributeExtractor func(a store.Action) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithIncludePayloadType enables recording the payload's Go type.
func WithIncludePayloadType(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludePayloadType = include
	}
}

// WithActionFilter sets a filter function for actions.
func WithActionFilter(filter func(a store.Action) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(a store.Action) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
	}
}

// OpenTelemetry creates middleware that traces every dispatched action.
//
// The middleware:
//   - Creates a span per action with its type, key and kind
//   - Passes the span context to the rest of the chain
//   - Records errors and sets span status
//   - Records the store's slice count after the action
//
// The tracer comes from the global provider unless WithTracerProvider is
// given. Configure it in main() before creating the registry:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) store.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(config.TracerName)

	return func(s *store.Store, next store.Next) store.Next {
		return func(ctx context.Context, a store.Action) error {
			if config.Filter != nil && !config.Filter(a) {
				return next(ctx, a)
			}

			attrs := []attribute.KeyValue{
				attribute.String("slicestore.action.type", a.Type),
				attribute.String("slicestore.action.kind", a.Kind.String()),
				attribute.String("slicestore.store_id", s.ID()),
			}
			if a.Key != "" {
				attrs = append(attrs, attribute.String("slicestore.key", a.Key))
			}
			if config.IncludePayloadType && a.Payload != nil {
				attrs = append(attrs, attribute.String("slicestore.payload_type", fmt.Sprintf("%T", a.Payload)))
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(a)...)
			}

			spanCtx, span := tracer.Start(ctx, formatSpanName(a),
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			err := next(spanCtx, a)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.SetAttributes(attribute.Int("slicestore.slices", len(s.Keys())))

			return err
		}
	}
}

func formatSpanName(a store.Action) string {
	return fmt.Sprintf("slicestore.dispatch %s", a.Type)
}

// SpanFromContext returns the span started for the action being dispatched,
// or a no-op span outside of one.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
