package validator

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/LerianStudio/lib-custody/custody/approval"
	"github.com/LerianStudio/lib-custody/custody/consumption"
	"github.com/LerianStudio/lib-custody/custody/events"
	"github.com/LerianStudio/lib-custody/custody/log"
	"github.com/LerianStudio/lib-custody/custody/opentelemetry"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNilApproverKey is returned when a validator is constructed without the
// approver public key.
var ErrNilApproverKey = errors.New("approver public key is required")

// Config carries everything a validator needs at construction time.
type Config struct {
	// NetworkID scopes signatures to one network deployment.
	NetworkID uint64

	// InstanceID is the validator's own identity, fixed at deployment.
	InstanceID custody.Identity

	// ApproverKey is the public key whose signatures the validator accepts.
	// Immutable for the validator's lifetime.
	ApproverKey *ecdsa.PublicKey

	// Store holds the consumed-ID set. Nil selects an in-memory store,
	// which is only safe for a single-process validator.
	Store consumption.Store

	// Sink receives consumption records. Nil discards them.
	Sink events.Sink
}

// Validator verifies and consumes signed withdrawal approvals.
type Validator struct {
	domain   approval.Domain
	approver custody.Identity
	store    consumption.Store
	sink     events.Sink

	mu    sync.RWMutex
	bound custody.Identity
}

// New builds a validator from cfg.
func New(cfg Config) (*Validator, error) {
	if custody.IsNilIdentity(cfg.InstanceID) {
		return nil, custody.NewError(custody.ErrorInvalidIdentity, "instanceId",
			"validator identity must be non-zero")
	}

	if cfg.ApproverKey == nil || cfg.ApproverKey.X == nil || cfg.ApproverKey.Y == nil {
		return nil, ErrNilApproverKey
	}

	store := cfg.Store
	if store == nil {
		store = consumption.NewMemoryStore()
	}

	sink := cfg.Sink
	if sink == nil {
		sink = events.NopSink{}
	}

	return &Validator{
		domain:   approval.NewDomain(cfg.NetworkID, cfg.InstanceID),
		approver: crypto.PubkeyToAddress(*cfg.ApproverKey),
		store:    store,
		sink:     sink,
	}, nil
}

// Identity returns the validator's own identity.
func (v *Validator) Identity() custody.Identity {
	return v.domain.Validator
}

// Approver returns the identity whose signatures the validator accepts.
func (v *Validator) Approver() custody.Identity {
	return v.approver
}

// Domain returns the signing domain approvals must target.
func (v *Validator) Domain() approval.Domain {
	return v.domain
}

// Bound returns the bound ledger identity, with ok false before Bind.
func (v *Validator) Bound() (custody.Identity, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.bound, !custody.IsNilIdentity(v.bound)
}

// Bind points the validator at its ledger. The binding is one-time: a second
// call fails with ErrAlreadyBound regardless of the argument.
func (v *Validator) Bind(ctx context.Context, ledgerID custody.Identity) error {
	logger, tracer, _ := custody.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "custody.validator.bind")
	defer span.End()

	if custody.IsNilIdentity(ledgerID) {
		err := custody.NewError(custody.ErrorInvalidIdentity, "ledgerId",
			"ledger identity must be non-zero")
		opentelemetry.HandleSpanError(span, "bind rejected", err)

		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !custody.IsNilIdentity(v.bound) {
		err := custody.NewError(custody.ErrorAlreadyBound, "ledgerId",
			"validator is already bound to a ledger")
		opentelemetry.HandleSpanError(span, "bind rejected", err)

		return err
	}

	v.bound = ledgerID

	logger.Log(ctx, log.LevelInfo, "validator bound to ledger",
		log.String("validator", v.domain.Validator.Hex()),
		log.String("ledger", ledgerID.Hex()),
	)

	return nil
}

// AuthorizationID computes the domain-separated digest for an approval
// message. Pure: no state is read or written, so off-chain tooling and the
// validator always agree on the ID.
func (v *Validator) AuthorizationID(
	ledgerID, recipient custody.Identity,
	amount *big.Int,
	nonce custody.Nonce,
) (custody.AuthorizationID, error) {
	return approval.ComputeID(v.domain, approval.Message{
		Ledger:    ledgerID,
		Recipient: recipient,
		Amount:    amount,
		Nonce:     nonce,
	})
}

// VerifyAndConsume checks a signed approval and, when every check passes,
// spends its authorization ID. Checks run in a fixed order: binding,
// caller authority, scope, prior consumption, signature. A failed signature
// never consumes the ID, and when the same ID races exactly one caller wins;
// the rest observe ErrAlreadyConsumed.
func (v *Validator) VerifyAndConsume(
	ctx context.Context,
	caller custody.Identity,
	ledgerID, recipient custody.Identity,
	amount *big.Int,
	nonce custody.Nonce,
	signature []byte,
) (custody.AuthorizationID, error) {
	logger, tracer, _ := custody.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "custody.validator.verify_and_consume")
	defer span.End()

	bound, ok := v.Bound()
	if !ok {
		err := custody.NewError(custody.ErrorNotBound, "caller",
			"validator has no bound ledger")
		opentelemetry.HandleSpanError(span, "verification rejected", err)

		return custody.AuthorizationID{}, err
	}

	if caller != bound {
		err := custody.NewError(custody.ErrorUnauthorizedCaller, "caller",
			"only the bound ledger may consume authorizations")
		opentelemetry.HandleSpanError(span, "verification rejected", err)

		return custody.AuthorizationID{}, err
	}

	if ledgerID != bound {
		err := custody.NewError(custody.ErrorScopeMismatch, "ledgerId",
			"approval targets a different ledger")
		opentelemetry.HandleSpanError(span, "verification rejected", err)

		return custody.AuthorizationID{}, err
	}

	id, err := v.AuthorizationID(ledgerID, recipient, amount, nonce)
	if err != nil {
		opentelemetry.HandleSpanError(span, "digest computation failed", err)

		return custody.AuthorizationID{}, err
	}

	consumed, err := v.store.Consumed(ctx, id)
	if err != nil {
		storeErr := custody.StoreError{Op: "consumed", Err: err}
		opentelemetry.HandleSpanError(span, "consumption lookup failed", storeErr)

		return custody.AuthorizationID{}, storeErr
	}

	if consumed {
		err := custody.NewError(custody.ErrorAlreadyConsumed, "authorizationId",
			"authorization has already been consumed")
		opentelemetry.HandleSpanError(span, "verification rejected", err)

		return custody.AuthorizationID{}, err
	}

	signer, err := approval.RecoverSigner(id, signature)
	if err != nil || signer != v.approver {
		rejection := custody.NewError(custody.ErrorInvalidSignature, "signature",
			"approval is not signed by the approver")
		opentelemetry.HandleSpanError(span, "verification rejected", rejection)

		return custody.AuthorizationID{}, rejection
	}

	won, err := v.store.Consume(ctx, id)
	if err != nil {
		storeErr := custody.StoreError{Op: "consume", Err: err}
		opentelemetry.HandleSpanError(span, "consumption write failed", storeErr)

		return custody.AuthorizationID{}, storeErr
	}

	if !won {
		err := custody.NewError(custody.ErrorAlreadyConsumed, "authorizationId",
			"authorization was consumed by a concurrent request")
		opentelemetry.HandleSpanError(span, "verification rejected", err)

		return custody.AuthorizationID{}, err
	}

	record := events.NewConsumption(ctx, events.ConsumptionRecord{
		AuthorizationID: id,
		Validator:       v.domain.Validator,
		Ledger:          ledgerID,
		Recipient:       recipient,
		Signer:          signer,
		Amount:          new(big.Int).Set(amount),
	})

	if err := v.sink.Publish(ctx, record); err != nil {
		logger.Log(ctx, log.LevelWarn, "consumption record publish failed",
			log.String("authorization_id", id.Hex()),
			log.Err(err),
		)
	}

	logger.Log(ctx, log.LevelInfo, "authorization consumed",
		log.String("authorization_id", id.Hex()),
		log.String("ledger", ledgerID.Hex()),
		log.String("recipient", recipient.Hex()),
		log.String("amount", amount.String()),
	)

	return id, nil
}

// Preview reports what VerifyAndConsume would decide, without consuming
// anything and without requiring the caller to be the bound ledger. Signer is
// the zero identity when signature recovery fails.
type Preview struct {
	AuthorizationID  custody.AuthorizationID `json:"authorizationId"`
	Signer           custody.Identity        `json:"signer"`
	SignedByApprover bool                    `json:"signedByApprover"`
	Consumed         bool                    `json:"consumed"`
}

// Preview computes the authorization ID, recovers the signer, and reads the
// consumed flag. Strictly read-only: it grants no authority and changes no
// state.
func (v *Validator) Preview(
	ctx context.Context,
	ledgerID, recipient custody.Identity,
	amount *big.Int,
	nonce custody.Nonce,
	signature []byte,
) (Preview, error) {
	_, tracer, _ := custody.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "custody.validator.preview")
	defer span.End()

	id, err := v.AuthorizationID(ledgerID, recipient, amount, nonce)
	if err != nil {
		opentelemetry.HandleSpanError(span, "digest computation failed", err)

		return Preview{}, err
	}

	preview := Preview{AuthorizationID: id}

	if signer, err := approval.RecoverSigner(id, signature); err == nil {
		preview.Signer = signer
		preview.SignedByApprover = signer == v.approver
	}

	consumed, err := v.store.Consumed(ctx, id)
	if err != nil {
		storeErr := custody.StoreError{Op: "consumed", Err: err}
		opentelemetry.HandleSpanError(span, "consumption lookup failed", storeErr)

		return Preview{}, storeErr
	}

	preview.Consumed = consumed

	return preview, nil
}
