// Package tracing wires up the OpenTelemetry SDK for toon-fleet-server's
// two traced entrypoints (device attestation and operator API spans, both
// started via the shared tracer in internal/api) against an OTLP/HTTP
// backend, when one is configured.
package tracing

import (
	"context"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
)

type CleanupFunc func()

// Init wires the tracer provider against OTEL_EXPORTER_OTLP_ENDPOINT when
// set; tracing stays a no-op otherwise so local runs and tests never need
// a collector. OTEL_EXPORTER_OTLP_INSECURE skips TLS for a collector
// reachable only on the fleet's private network.
func Init(ctx context.Context, logger zerolog.Logger, serviceName, serviceVersion string) (CleanupFunc, error) {

	exporterEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cleanupFunc := func() {}

	if exporterEndpoint != "" {
		opts := []otlptracehttp.Option{}
		if insecure, _ := strconv.ParseBool(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}

		client := otlptracehttp.NewClient(opts...)
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			logger.Fatal().Msgf("creating OTLP trace exporter: %v", err)
		}

		tracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(newResource(serviceName, serviceVersion)),
		)
		otel.SetTracerProvider(tracerProvider)

		cleanupFunc = func() {
			if err := tracerProvider.Shutdown(ctx); err != nil {
				logger.Fatal().Msgf("stopping tracer provider: %v", err)
			}
		}
	}

	return cleanupFunc, nil
}

// newResource describes this deployment: service identity plus the fleet
// environment (staging/production/...) every span should be filterable by.
func newResource(serviceName, version string) *resource.Resource {
	environment := os.Getenv("TOON_ENVIRONMENT")
	if environment == "" {
		environment = "dev"
	}
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
		semconv.DeploymentEnvironmentKey.String(environment),
	)
}
