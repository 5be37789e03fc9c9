//go:build unit

package opentelemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/LerianStudio/lib-custody/custody/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitializeTelemetryWithErrorValidation(t *testing.T) {
	_, err := InitializeTelemetryWithError(nil)
	require.ErrorIs(t, err, ErrNilTelemetryConfig)

	_, err = InitializeTelemetryWithError(&TelemetryConfig{})
	require.ErrorIs(t, err, ErrNilTelemetryLogger)
}

func TestInitializeTelemetryDisabled(t *testing.T) {
	telemetry, err := InitializeTelemetryWithError(&TelemetryConfig{
		LibraryName: "lib-custody",
		ServiceName: "custody-test",
		Logger:      log.NewNop(),
	})
	require.NoError(t, err)
	require.NotNil(t, telemetry)
	assert.Nil(t, telemetry.TracerProvider)
	assert.NotNil(t, telemetry.Tracer())

	assert.NotPanics(t, func() { telemetry.ShutdownTelemetry() })
}

func TestTracerNilReceiverFallsBack(t *testing.T) {
	var telemetry *Telemetry

	assert.NotNil(t, telemetry.Tracer())
	assert.NotPanics(t, func() { telemetry.ShutdownTelemetry() })
}

func TestHandleSpanError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := provider.Tracer("test").Start(context.Background(), "op")
	HandleSpanError(span, "operation failed", errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Status().Description, "operation failed")
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestHandleSpanErrorNilSafe(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := provider.Tracer("test").Start(context.Background(), "op")
	HandleSpanError(span, "no error", nil)
	HandleSpanError(nil, "no span", errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Empty(t, spans[0].Events())
}
