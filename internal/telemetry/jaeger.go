package telemetry

import (
	"context"
	"fmt"

	"mapsketch/internal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
LEARNING: JAEGER INTEGRATION FOR DISTRIBUTED TRACING

Spans come from two places: one root span per HTTP request (middleware) and
one span per relayed message (relay.OnMessage) carrying room, session id,
size and recipient count.

	relay / middleware -> OpenTelemetry SDK -> Jaeger exporter -> collector -> UI

Tracing is off unless JAEGER_ENDPOINT is set; spans then go to the no-op
global provider.
*/

// Config describes the tracer provider
type Config struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	// SampleRatio in (0, 1]; anything else samples every trace
	SampleRatio float64
}

// InitJaeger installs a global tracer provider exporting to Jaeger.
// Returns a cleanup function that flushes pending spans on shutdown.
func InitJaeger(cfg Config) (func(context.Context) error, error) {
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)

	logging.Info().
		Str("endpoint", cfg.Endpoint).
		Str("service", cfg.ServiceName).
		Msg("✓ Jaeger tracing initialized")

	return tp.Shutdown, nil
}

// sampler treats a zero ratio as unset; disable tracing by leaving the endpoint empty
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
