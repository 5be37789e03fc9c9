package custody

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/LerianStudio/lib-custody/custody/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrNilParentContext indicates that a nil parent context was provided
var ErrNilParentContext = errors.New("cannot create context from nil parent")

// ---- Context container ----

type customContextKey string

// CustomContextKey is the context key used to store CustomContextKeyValue.
var CustomContextKey = customContextKey("custody_context")

// CustomContextKeyValue holds all request-scoped facilities we attach to context.
type CustomContextKeyValue struct {
	HeaderID string
	Tracer   trace.Tracer
	Logger   log.Logger
}

// cloneContextValues copies the container stored in ctx so a write on a
// derived context never leaks into the parent. Absent or mistyped values
// yield an empty container.
func cloneContextValues(ctx context.Context) *CustomContextKeyValue {
	values, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if !ok || values == nil {
		return &CustomContextKeyValue{}
	}

	clone := *values

	return &clone
}

// ---- Logger helpers ----

// NewLoggerFromContext extracts the Logger attached to the context, falling
// back to a no-op logger when none is present.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	if customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok &&
		customContext.Logger != nil {
		return customContext.Logger
	}

	return &log.NopLogger{}
}

// ContextWithLogger returns a context carrying the given Logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values := cloneContextValues(ctx)
	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Tracer helpers ----

// ContextWithTracer returns a context carrying the given trace.Tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	values := cloneContextValues(ctx)
	values.Tracer = tracer

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Correlation / HeaderID helpers ----

// ContextWithHeaderID returns a context carrying the given correlation ID.
func ContextWithHeaderID(ctx context.Context, headerID string) context.Context {
	values := cloneContextValues(ctx)
	values.HeaderID = headerID

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Tracking bundle (convenience) ----

// NewTrackingFromContext extracts the logger, tracer, and correlation ID from
// context with fail-safe fallbacks: a no-op logger, the global tracer, and a
// fresh UUID. Callers never need nil checks on the results.
//
//nolint:ireturn
func NewTrackingFromContext(ctx context.Context) (log.Logger, trace.Tracer, string) {
	customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if !ok || customContext == nil {
		return &log.NopLogger{}, otel.Tracer("custody.default"), uuid.New().String()
	}

	return resolveLogger(customContext.Logger),
		resolveTracer(customContext.Tracer),
		resolveHeaderID(customContext.HeaderID)
}

func resolveLogger(logger log.Logger) log.Logger {
	if logger != nil {
		return logger
	}

	return &log.NopLogger{}
}

func resolveTracer(tracer trace.Tracer) trace.Tracer {
	if tracer != nil {
		return tracer
	}

	return otel.Tracer("custody.default")
}

func resolveHeaderID(headerID string) string {
	if trimmed := strings.TrimSpace(headerID); trimmed != "" {
		return trimmed
	}

	return uuid.New().String()
}

// ---- Deadline Management ----

// WithTimeoutSafe creates a context with the specified timeout, but respects
// any existing deadline in the parent context. Returns an error if parent is nil.
//
// When the parent's deadline is shorter than the requested timeout, the
// returned context inherits the parent's deadline rather than creating a
// new one.
func WithTimeoutSafe(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if parent == nil {
		return nil, nil, ErrNilParentContext
	}

	if deadline, ok := parent.Deadline(); ok {
		timeUntilDeadline := time.Until(deadline)

		if timeUntilDeadline < timeout {
			ctx, cancel := context.WithCancel(parent)
			return ctx, cancel, nil
		}
	}

	ctx, cancel := context.WithTimeout(parent, timeout)

	return ctx, cancel, nil
}
