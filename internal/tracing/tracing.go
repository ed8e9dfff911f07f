// Package tracing provides OpenTelemetry distributed tracing for the
// coordinator, instrumenting the setup handshake and each dispatched task
// with spans exported to stdout (or disabled entirely).
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/flockd-project/flockd"

// Config holds tracing configuration.
type Config struct {
	// Enabled turns tracing on/off.
	Enabled bool

	// Exporter selects the trace exporter: "stdout" or "none".
	Exporter string

	// ServiceName overrides the default service name.
	ServiceName string
}

// DefaultConfig returns tracing defaults (disabled).
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Exporter:    "none",
		ServiceName: "flockd-coordinator",
	}
}

// Provider wraps the OTEL TracerProvider and exposes flockd-specific span
// helpers for each stage of a batch run.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Init sets up the global TracerProvider based on cfg. Returns a Provider
// that must be shut down with Shutdown().
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled || cfg.Exporter == "none" || cfg.Exporter == "" {
		return &Provider{tracer: trace.NewNoopTracerProvider().Tracer(tracerName)}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("tracing: unsupported exporter %q (supported: stdout, none)", cfg.Exporter)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("0.1.0"),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp, tracer: tp.Tracer(tracerName)}, nil
}

// Shutdown flushes pending spans and shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Tracer returns the flockd tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// StartSetup creates a span covering one worker's setup handshake.
func (p *Provider) StartSetup(ctx context.Context, slotID int) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "flockd.setup",
		trace.WithAttributes(attribute.Int("flockd.slot_id", slotID)),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartDispatch creates a span covering one dispatched task.
func (p *Provider) StartDispatch(ctx context.Context, slotID int, mode string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "flockd.dispatch",
		trace.WithAttributes(
			attribute.Int("flockd.slot_id", slotID),
			attribute.String("flockd.mode", mode),
		),
	)
}

// RecordResult adds result attributes to a dispatch span.
func RecordResult(span trace.Span, latency time.Duration) {
	span.SetAttributes(attribute.Int64("flockd.latency_ms", latency.Milliseconds()))
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("error", true))
}
