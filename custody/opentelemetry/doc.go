// Package opentelemetry bootstraps tracing for custody services: an OTLP/gRPC
// exporter, a tracer provider with service resource attributes, and the span
// error helper shared by instrumented operations.
package opentelemetry
