package custody

import (
	"fmt"
	"math/big"
)

// ErrorCode is a stable custody domain error code. Codes are part of the
// public contract: tooling and API consumers match on them, so existing
// codes are never renumbered.
type ErrorCode string

const (
	// ErrorInvalidIdentity indicates the null identity where a real party is required.
	ErrorInvalidIdentity ErrorCode = "CST-0001"
	// ErrorAlreadyBound indicates a second bind attempt on a validator.
	ErrorAlreadyBound ErrorCode = "CST-0002"
	// ErrorNotBound indicates a consuming call before any ledger was bound.
	ErrorNotBound ErrorCode = "CST-0003"
	// ErrorUnauthorizedCaller indicates a consuming call from a non-bound caller.
	ErrorUnauthorizedCaller ErrorCode = "CST-0004"
	// ErrorScopeMismatch indicates an approval scoped to a different ledger.
	ErrorScopeMismatch ErrorCode = "CST-0005"
	// ErrorAlreadyConsumed indicates a replayed authorization.
	ErrorAlreadyConsumed ErrorCode = "CST-0006"
	// ErrorInvalidSignature indicates the signer is not the authorized approver.
	ErrorInvalidSignature ErrorCode = "CST-0007"
	// ErrorInvalidRecipient indicates a withdrawal to the null identity.
	ErrorInvalidRecipient ErrorCode = "CST-0008"
	// ErrorInsufficientBalance indicates a withdrawal exceeding the accounted balance.
	ErrorInsufficientBalance ErrorCode = "CST-0009"
	// ErrorAuthorizationFailed indicates the validator rejected a withdrawal's approval.
	ErrorAuthorizationFailed ErrorCode = "CST-0010"
	// ErrorTransferFailed indicates the external transfer step failed after authorization.
	ErrorTransferFailed ErrorCode = "CST-0011"
	// ErrorReentrancy indicates a state-mutating call issued during an in-flight transfer.
	ErrorReentrancy ErrorCode = "CST-0012"
	// ErrorInvalidAmount indicates a nil, negative, or malformed amount.
	ErrorInvalidAmount ErrorCode = "CST-0013"
	// ErrorInvalidConfig indicates invalid component configuration.
	ErrorInvalidConfig ErrorCode = "CST-0014"
	// ErrorStoreFailure indicates the consumption store failed an operation.
	ErrorStoreFailure ErrorCode = "CST-0015"
)

// Error is a structured custody domain error carrying a stable code.
type Error struct {
	Code    ErrorCode `json:"code"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

// Error returns the formatted domain error string.
func (e Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// Is matches custody errors by code, so callers can test a contextualized
// error (one built with NewError and a field) against the package sentinels.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)

	return ok && t.Code == e.Code
}

// NewError creates a custody domain error with code, field, and message.
func NewError(code ErrorCode, field, message string) error {
	return Error{Code: code, Field: field, Message: message}
}

// Sentinels for the fixed-message members of the taxonomy. Match with
// errors.Is; errors carrying values (insufficient balance, authorization,
// transfer, store) have dedicated types below and match with errors.As.
var (
	// ErrInvalidIdentity is returned when the null identity is supplied where a real party is required.
	ErrInvalidIdentity = Error{Code: ErrorInvalidIdentity, Message: "identity is the null identity"}
	// ErrAlreadyBound is returned when Bind is called on a validator that already has a bound ledger.
	ErrAlreadyBound = Error{Code: ErrorAlreadyBound, Message: "validator is already bound to a ledger"}
	// ErrNotBound is returned when a consuming operation runs before any ledger was bound.
	ErrNotBound = Error{Code: ErrorNotBound, Message: "validator has no bound ledger"}
	// ErrUnauthorizedCaller is returned when a consuming operation is invoked by anyone but the bound ledger.
	ErrUnauthorizedCaller = Error{Code: ErrorUnauthorizedCaller, Message: "caller is not the bound ledger"}
	// ErrScopeMismatch is returned when an approval names a ledger other than the bound one.
	ErrScopeMismatch = Error{Code: ErrorScopeMismatch, Message: "approval is scoped to a different ledger"}
	// ErrAlreadyConsumed is returned when an authorization was consumed before.
	ErrAlreadyConsumed = Error{Code: ErrorAlreadyConsumed, Message: "authorization is already consumed"}
	// ErrInvalidSignature is returned when the recovered signer is not the authorized approver.
	ErrInvalidSignature = Error{Code: ErrorInvalidSignature, Message: "signature is not from the authorized approver"}
	// ErrInvalidRecipient is returned when a withdrawal targets the null identity.
	ErrInvalidRecipient = Error{Code: ErrorInvalidRecipient, Message: "recipient is the null identity"}
	// ErrReentrancy is returned when a state-mutating call arrives during an in-flight transfer.
	ErrReentrancy = Error{Code: ErrorReentrancy, Message: "reentrant call during transfer"}
	// ErrInvalidAmount is returned when an amount is nil or negative.
	ErrInvalidAmount = Error{Code: ErrorInvalidAmount, Message: "amount must be a non-negative integer"}
)

// InsufficientBalanceError reports a withdrawal amount exceeding the ledger's
// accounted balance. Both values are snapshots taken under the ledger lock.
type InsufficientBalanceError struct {
	Available *big.Int
	Requested *big.Int
}

// Error returns the formatted insufficient balance error string.
func (e InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: insufficient accounted balance: available %s, requested %s",
		ErrorInsufficientBalance, e.Available, e.Requested)
}

// AuthorizationError wraps the validator rejection that failed a withdrawal.
// The inner reason stays inspectable through errors.Is and errors.As.
type AuthorizationError struct {
	Reason error
}

// Error returns the formatted authorization error string.
func (e AuthorizationError) Error() string {
	return fmt.Sprintf("%s: authorization failed: %v", ErrorAuthorizationFailed, e.Reason)
}

// Unwrap exposes the validator rejection.
func (e AuthorizationError) Unwrap() error {
	return e.Reason
}

// TransferError reports a failed external transfer. The accounted balance has
// been restored by the time this error is returned; the consumed authorization
// stays consumed.
type TransferError struct {
	Recipient Identity
	Cause     error
}

// Error returns the formatted transfer error string.
func (e TransferError) Error() string {
	return fmt.Sprintf("%s: transfer to %s failed: %v", ErrorTransferFailed, e.Recipient.Hex(), e.Cause)
}

// Unwrap exposes the transfer mechanism's failure.
func (e TransferError) Unwrap() error {
	return e.Cause
}

// StoreError reports a consumption store failure during a validator operation.
type StoreError struct {
	Op  string
	Err error
}

// Error returns the formatted store error string.
func (e StoreError) Error() string {
	return fmt.Sprintf("%s: consumption store %s failed: %v", ErrorStoreFailure, e.Op, e.Err)
}

// Unwrap exposes the underlying store failure.
func (e StoreError) Unwrap() error {
	return e.Err
}
