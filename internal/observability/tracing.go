package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/callcenter/internal/config"
)

const (
	tracerName      = "github.com/pitabwire/callcenter"
	defaultSampling = 0.1
)

// Span attributes shared by screen, backend and lookup spans.
var (
	AttrScreenID   = attribute.Key("callcenter.screen_id")
	AttrScreenKind = attribute.Key("callcenter.screen_kind")
	AttrEvent      = attribute.Key("callcenter.event")
	AttrOperation  = attribute.Key("callcenter.backend_operation")
	AttrSubjectID  = attribute.Key("callcenter.subject_id")
	AttrLookup     = attribute.Key("callcenter.lookup_source")
	AttrCacheHit   = attribute.Key("callcenter.cache_hit")
)

// InitTracing installs the global tracer provider and W3C propagators. With
// tracing disabled nothing is installed and the returned shutdown is a no-op.
func InitTracing(ctx context.Context, cfg config.TracingConfig, serviceName, serviceVersion string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp", "":
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("tracing: exporter %q not supported", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// sampler honours the caller's sampling decision and samples root spans at
// rate.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		rate = defaultSampling
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Tracer returns the service tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartScreenSpan starts the span around one screen event. Mounts use the
// event name "mount".
func StartScreenSpan(ctx context.Context, kind, id, event string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "screen."+kind+"."+event, trace.WithAttributes(
		AttrScreenKind.String(kind),
		AttrScreenID.String(id),
		AttrEvent.String(event),
	))
}

// StartBackendSpan starts a client span for one backend operation.
func StartBackendSpan(ctx context.Context, operation, method string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "backend."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String(operation),
			semconv.HTTPRequestMethodKey.String(method),
		),
	)
}

// FinishBackendSpan records the backend status on span and ends it. A
// transport error or a 5xx marks the span failed.
func FinishBackendSpan(span trace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	}
	if err == nil && status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	EndSpan(span, err)
}

// StartLookupSpan starts the span around one cached lookup.
func StartLookupSpan(ctx context.Context, source string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "lookup."+source, trace.WithAttributes(AttrLookup.String(source)))
}

// EndSpan ends span, recording err if there is one.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceIDFromContext returns the active trace ID, or "".
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// TracingMiddleware starts a server span per request, continuing any inbound
// traceparent. The span is renamed to the matched route once chi has routed
// the request, so screen IDs stay out of span names.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prop := otel.GetTextMapPropagator()
		ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := Tracer().Start(ctx, r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
			),
		)
		defer span.End()

		prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(ctx)
		next.ServeHTTP(sw, r)

		if route := routePattern(r); route != "" {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(semconv.HTTPRoute(route))
		}
		span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))
		if sw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
	})
}

// InjectTraceHeaders writes the trace context of ctx into outbound headers.
func InjectTraceHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
