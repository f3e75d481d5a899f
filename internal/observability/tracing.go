package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for router spans.
const tracerName = "github.com/concord-chat/intercom-router"

// TracingConfig configures the OpenTelemetry SDK providers for the router.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// TraceExporter is optional; when nil spans are recorded but not
	// exported, useful for tests.
	TraceExporter sdktrace.SpanExporter
}

// InitTracing wires a TracerProvider and a MeterProvider backed by the
// same Prometheus registry exposed at /metrics, so the request-lifecycle
// spans described in SPEC_FULL.md §9 (authenticate -> produce -> consume)
// sit alongside the plain counters/gauges in Metrics. Returns a shutdown
// func to call during graceful shutdown.
func InitTracing(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "intercom-router"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}
	return shutdown, nil
}

// Tracer returns the package-level Tracer for the router.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartRequestSpan starts a span for one signaling request lifecycle stage
// (e.g. "authenticate", "produce", "consume"), tagging client/channel ids
// when known.
func StartRequestSpan(ctx context.Context, event, clientID, channelID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("intercom.event", event)}
	if clientID != "" {
		attrs = append(attrs, attribute.String("intercom.client_id", clientID))
	}
	if channelID != "" {
		attrs = append(attrs, attribute.String("intercom.channel_id", channelID))
	}
	return Tracer().Start(ctx, event, trace.WithAttributes(attrs...))
}
