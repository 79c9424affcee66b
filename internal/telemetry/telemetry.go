// Package telemetry wires OpenTelemetry into deck's HTTP client and cache.
//
// Telemetry is off unless DECK_OTEL_ENABLED=true; no-op providers are
// installed otherwise.
//
//	DECK_OTEL_ENABLED=true                  turn telemetry on
//	DECK_OTEL_STDOUT=true                   pretty-print spans and metrics to the CLI's stderr
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT=... push metrics over OTLP/HTTP
//	OTEL_EXPORTER_OTLP_ENDPOINT=...         fallback for the above
//
// Spans are only exported to the stdout writer.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/taskdeck/deck"

// Options selects the exporters installed by InitWith.
type Options struct {
	Service string
	Version string

	// Writer receives the stdout exporters' output when Stdout is set.
	Writer io.Writer
	Stdout bool

	// MetricsEndpoint is an OTLP/HTTP URL or host:port. Empty disables push.
	MetricsEndpoint string
	// PushInterval defaults to 30s; stdout metrics are written every 15s.
	PushInterval time.Duration
}

var (
	mu       sync.Mutex
	shutdown []func(context.Context) error
)

// Enabled reports whether DECK_OTEL_ENABLED is "true".
func Enabled() bool {
	return os.Getenv("DECK_OTEL_ENABLED") == "true"
}

// OptionsFromEnv builds Options from the DECK_OTEL_* and OTEL_EXPORTER_* variables.
func OptionsFromEnv(service, version string, w io.Writer) Options {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return Options{
		Service:         service,
		Version:         version,
		Writer:          w,
		Stdout:          os.Getenv("DECK_OTEL_STDOUT") == "true",
		MetricsEndpoint: endpoint,
	}
}

// Init installs providers configured from the environment, or no-op ones
// when telemetry is disabled.
func Init(ctx context.Context, service, version string, w io.Writer) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}
	return InitWith(ctx, OptionsFromEnv(service, version, w))
}

// InitWith installs SDK providers for opts regardless of DECK_OTEL_ENABLED.
func InitWith(ctx context.Context, opts Options) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.Service),
			semconv.ServiceVersionKey.String(opts.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if opts.Stdout && opts.Writer != nil {
		spans, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("telemetry: stdout spans: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spans))

		metrics, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Writer))
		if err != nil {
			return fmt.Errorf("telemetry: stdout metrics: %w", err)
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(15*time.Second)),
		))
	}

	if opts.MetricsEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, opts.MetricsEndpoint)
		if err != nil {
			return fmt.Errorf("telemetry: otlp metrics: %w", err)
		}
		every := opts.PushInterval
		if every <= 0 {
			every = 30 * time.Second
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(every)),
		))
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	mp := sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	mu.Lock()
	shutdown = append(shutdown, tp.Shutdown, mp.Shutdown)
	mu.Unlock()
	return nil
}

// Tracer returns a tracer for name, or for the module scope when empty.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter for name, or for the module scope when empty.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops the providers installed by Init.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fns := shutdown
	shutdown = nil
	mu.Unlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
