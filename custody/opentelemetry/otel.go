package opentelemetry

import (
	"context"
	"errors"
	"time"

	"github.com/LerianStudio/lib-custody/custody/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNilTelemetryConfig indicates that nil config was provided to InitializeTelemetryWithError
	ErrNilTelemetryConfig = errors.New("telemetry config cannot be nil")
	// ErrNilTelemetryLogger indicates that config.Logger is nil
	ErrNilTelemetryLogger = errors.New("telemetry config logger cannot be nil")
)

const shutdownTimeout = 5 * time.Second

// TelemetryConfig carries the tracing bootstrap inputs.
type TelemetryConfig struct {
	LibraryName               string
	ServiceName               string
	ServiceVersion            string
	DeploymentEnv             string
	CollectorExporterEndpoint string
	EnableTelemetry           bool
	Logger                    log.Logger
}

// Telemetry holds the initialized tracer provider and its shutdown hook.
type Telemetry struct {
	TelemetryConfig
	TracerProvider *sdktrace.TracerProvider
	shutdown       func()
}

// newResource creates a resource with the service identification attributes.
func (tl *TelemetryConfig) newResource() *sdkresource.Resource {
	return sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(tl.ServiceName),
		semconv.ServiceVersion(tl.ServiceVersion),
		semconv.DeploymentEnvironmentName(tl.DeploymentEnv),
		semconv.TelemetrySDKLanguageGo,
	)
}

// newTracerExporter creates an OTLP/gRPC trace exporter for the collector endpoint.
func (tl *TelemetryConfig) newTracerExporter(ctx context.Context) (*otlptrace.Exporter, error) {
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(tl.CollectorExporterEndpoint),
		otlptracegrpc.WithInsecure(),
	)
}

// InitializeTelemetryWithError bootstraps the tracer provider and registers it
// globally, together with the W3C trace-context and baggage propagators. When
// EnableTelemetry is false it returns a Telemetry whose Tracer falls back to
// the global (no-op) provider.
func InitializeTelemetryWithError(cfg *TelemetryConfig) (*Telemetry, error) {
	if cfg == nil {
		return nil, ErrNilTelemetryConfig
	}

	if cfg.Logger == nil {
		return nil, ErrNilTelemetryLogger
	}

	ctx := context.Background()

	if !cfg.EnableTelemetry {
		cfg.Logger.Log(ctx, log.LevelInfo, "telemetry disabled, spans will not be exported")

		return &Telemetry{TelemetryConfig: *cfg}, nil
	}

	exporter, err := cfg.newTracerExporter(ctx)
	if err != nil {
		cfg.Logger.Log(ctx, log.LevelError, "failed to create tracer exporter", log.Err(err))

		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(cfg.newResource()),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	telemetry := &Telemetry{
		TelemetryConfig: *cfg,
		TracerProvider:  tracerProvider,
	}

	telemetry.shutdown = func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			cfg.Logger.Log(shutdownCtx, log.LevelWarn, "failed to shut down tracer provider", log.Err(err))
		}
	}

	cfg.Logger.Log(ctx, log.LevelInfo, "telemetry initialized",
		log.String("service", cfg.ServiceName),
		log.String("endpoint", cfg.CollectorExporterEndpoint))

	return telemetry, nil
}

// Tracer returns a tracer named after the configured library.
//
//nolint:ireturn
func (tl *Telemetry) Tracer() trace.Tracer {
	if tl == nil {
		return otel.Tracer("custody.default")
	}

	if tl.TracerProvider != nil {
		return tl.TracerProvider.Tracer(tl.LibraryName)
	}

	return otel.Tracer(tl.LibraryName)
}

// ShutdownTelemetry flushes and stops the tracer provider.
func (tl *Telemetry) ShutdownTelemetry() {
	if tl == nil || tl.shutdown == nil {
		return
	}

	tl.shutdown()
}

// HandleSpanError marks the span as failed and records the error. Safe to call
// with a nil error, in which case the span is left untouched.
func HandleSpanError(span trace.Span, message string, err error) {
	if span == nil || err == nil {
		return
	}

	span.SetStatus(codes.Error, message+": "+err.Error())
	span.RecordError(err)
}
