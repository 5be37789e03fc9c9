// Package custody provides the shared domain types for the authorization-gated
// custody system: identities, nonces, the structured error taxonomy, and the
// context plumbing used across subpackages.
//
// Typical usage at request ingress:
//
//	ctx = custody.ContextWithLogger(ctx, logger)
//	ctx = custody.ContextWithTracer(ctx, tracer)
//	ctx = custody.ContextWithHeaderID(ctx, requestID)
//
// This package is intentionally dependency-light; specialized components live
// in subpackages such as approval, validator, ledger, consumption, events,
// signing, and server.
package custody
