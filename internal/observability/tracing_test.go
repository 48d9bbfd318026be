package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pitabwire/callcenter/internal/config"
)

func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exp
}

func onlySpan(t *testing.T, exp *tracetest.InMemoryExporter) tracetest.SpanStub {
	t.Helper()
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	return spans[0]
}

func attr(s tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestInitTracing_disabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, "callcenter", "test")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitTracing_rejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "zipkin"}, "callcenter", "test")
	if err == nil {
		t.Fatal("expected an error for the zipkin exporter")
	}
}

func TestSampler(t *testing.T) {
	for _, rate := range []float64{-1, 0, 0.5, 1, 2} {
		if sampler(rate) == nil {
			t.Errorf("sampler(%v) = nil", rate)
		}
	}
}

func TestStartScreenSpan(t *testing.T) {
	exp := recordSpans(t)

	ctx, span := StartScreenSpan(context.Background(), "call_registration", "s-1", "submit")
	if TraceIDFromContext(ctx) == "" {
		t.Error("screen span should be active in the returned context")
	}
	span.End()

	s := onlySpan(t, exp)
	if s.Name != "screen.call_registration.submit" {
		t.Errorf("name = %q", s.Name)
	}
	if v, _ := attr(s, AttrScreenID); v.AsString() != "s-1" {
		t.Errorf("screen_id = %q", v.AsString())
	}
}

func TestFinishBackendSpan(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		failed bool
	}{
		{name: "created", status: http.StatusCreated},
		{name: "rejected", status: http.StatusUnprocessableEntity},
		{name: "unavailable", status: http.StatusServiceUnavailable, failed: true},
		{name: "transport error", err: errors.New("connection refused"), failed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := recordSpans(t)

			_, span := StartBackendSpan(context.Background(), "register_call", http.MethodPost)
			FinishBackendSpan(span, tt.status, tt.err)

			s := onlySpan(t, exp)
			if s.Name != "backend.register_call" {
				t.Errorf("name = %q", s.Name)
			}
			if got := s.Status.Code == codes.Error; got != tt.failed {
				t.Errorf("failed = %v, want %v", got, tt.failed)
			}
			if _, ok := attr(s, "http.response.status_code"); ok != (tt.status > 0) {
				t.Errorf("status attribute present = %v", ok)
			}
		})
	}
}

func TestStartLookupSpan_recordsError(t *testing.T) {
	exp := recordSpans(t)

	_, span := StartLookupSpan(context.Background(), "cnes")
	EndSpan(span, errors.New("timeout"))

	s := onlySpan(t, exp)
	if s.Status.Code != codes.Error || len(s.Events) == 0 {
		t.Errorf("status = %v, events = %d", s.Status.Code, len(s.Events))
	}
	if v, _ := attr(s, AttrLookup); v.AsString() != "cnes" {
		t.Errorf("lookup_source = %q", v.AsString())
	}
}

func TestTraceIDFromContext_noSpan(t *testing.T) {
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Errorf("TraceIDFromContext() = %q, want empty", got)
	}
}

func TestTracingMiddleware_namesSpanByRoute(t *testing.T) {
	exp := recordSpans(t)

	r := chi.NewRouter()
	r.Use(TracingMiddleware)
	r.Post("/ui/screens/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Error("handler context should carry a span")
		}
		w.WriteHeader(http.StatusBadGateway)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ui/screens/8f1c/events", nil))

	s := onlySpan(t, exp)
	if s.Name != "POST /ui/screens/{id}/events" {
		t.Errorf("name = %q", s.Name)
	}
	if s.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error for 502", s.Status.Code)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("response should carry a traceparent header")
	}
}

func TestTracingMiddleware_continuesInboundTrace(t *testing.T) {
	exp := recordSpans(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != traceID {
			t.Errorf("trace id = %q, want %q", got, traceID)
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/ui/screens/x", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if s := onlySpan(t, exp); s.Parent.TraceID().String() != traceID {
		t.Errorf("parent trace = %s", s.Parent.TraceID())
	}
}

func TestInjectTraceHeaders(t *testing.T) {
	recordSpans(t)
	ctx, span := StartBackendSpan(context.Background(), "fetch_municipios", http.MethodGet)
	defer span.End()

	h := http.Header{}
	InjectTraceHeaders(ctx, h)
	if h.Get("traceparent") == "" {
		t.Error("traceparent header should be injected")
	}
}
