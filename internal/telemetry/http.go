package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const httpScopeName = "github.com/taskdeck/deck/gateway"

// Transport wraps an http.RoundTripper with a client span per request and
// deck.http.* metrics.
type Transport struct {
	inner  http.RoundTripper
	tracer trace.Tracer
	reqs   metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapTransport returns rt decorated with OTel instrumentation.
// When telemetry is disabled, rt is returned as-is.
func WrapTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if !Enabled() {
		return rt
	}
	m := Meter(httpScopeName)
	reqs, _ := m.Int64Counter("deck.http.requests",
		metric.WithDescription("Backend requests sent"),
	)
	dur, _ := m.Float64Histogram("deck.http.request.duration",
		metric.WithDescription("Backend request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("deck.http.errors",
		metric.WithDescription("Backend requests that failed in transport or returned >= 400"),
	)
	return &Transport{
		inner:  rt,
		tracer: Tracer(httpScopeName),
		reqs:   reqs,
		dur:    dur,
		errs:   errs,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	}
	ctx, span := t.tracer.Start(req.Context(), "http "+req.Method,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()
	t.reqs.Add(ctx, 1, metric.WithAttributes(attrs...))

	start := time.Now()
	resp, err := t.inner.RoundTrip(req.WithContext(ctx))
	ms := float64(time.Since(start).Milliseconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
		t.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
		return nil, err
	}

	status := attribute.Int("http.response.status_code", resp.StatusCode)
	span.SetAttributes(status)
	t.dur.Record(ctx, ms, metric.WithAttributes(append(attrs, status)...))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, strconv.Itoa(resp.StatusCode))
		t.errs.Add(ctx, 1, metric.WithAttributes(append(attrs, status)...))
	}
	return resp, nil
}
