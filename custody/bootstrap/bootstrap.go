package bootstrap

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/LerianStudio/lib-custody/custody/consumption"
	"github.com/LerianStudio/lib-custody/custody/events"
	"github.com/LerianStudio/lib-custody/custody/ledger"
	"github.com/LerianStudio/lib-custody/custody/log"
	"github.com/LerianStudio/lib-custody/custody/validator"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// ErrUnhealthy is the base error for failed deployment health checks.
var ErrUnhealthy = errors.New("custody deployment unhealthy")

// Config carries everything Deploy needs.
type Config struct {
	// NetworkID scopes the deployment's signing domain.
	NetworkID uint64

	// Deployer is the identity performing the deployment, recorded for audit.
	Deployer custody.Identity

	// ApproverKey is the public key the validator will trust.
	ApproverKey *ecdsa.PublicKey

	// ValidatorID and LedgerID fix the instance identities. Zero values get
	// fresh random identities.
	ValidatorID custody.Identity
	LedgerID    custody.Identity

	// Store backs the validator's consumed set. Nil selects in-memory.
	Store consumption.Store

	// Sink receives operation records from both components. Nil discards.
	Sink events.Sink

	// Transferer performs the ledger's external transfers. Required.
	Transferer ledger.Transferer
}

// Deployment is a bound validator/ledger pair and its record.
type Deployment struct {
	Record    DeploymentRecord
	Validator *validator.Validator
	Ledger    *ledger.Ledger
}

// Deploy constructs the pair, binds the validator to the ledger, and stamps
// the deployment record.
func Deploy(ctx context.Context, cfg Config) (*Deployment, error) {
	logger, _, _ := custody.NewTrackingFromContext(ctx)

	if custody.IsNilIdentity(cfg.Deployer) {
		return nil, custody.NewError(custody.ErrorInvalidIdentity, "deployer",
			"deployer identity must be non-zero")
	}

	validatorID := cfg.ValidatorID
	if custody.IsNilIdentity(validatorID) {
		var err error
		if validatorID, err = custody.RandomIdentity(); err != nil {
			return nil, fmt.Errorf("generate validator identity: %w", err)
		}
	}

	ledgerID := cfg.LedgerID
	if custody.IsNilIdentity(ledgerID) {
		var err error
		if ledgerID, err = custody.RandomIdentity(); err != nil {
			return nil, fmt.Errorf("generate ledger identity: %w", err)
		}
	}

	v, err := validator.New(validator.Config{
		NetworkID:   cfg.NetworkID,
		InstanceID:  validatorID,
		ApproverKey: cfg.ApproverKey,
		Store:       cfg.Store,
		Sink:        cfg.Sink,
	})
	if err != nil {
		return nil, fmt.Errorf("construct validator: %w", err)
	}

	l, err := ledger.New(ledger.Config{
		InstanceID: ledgerID,
		Authorizer: v,
		Transferer: cfg.Transferer,
		Sink:       cfg.Sink,
	})
	if err != nil {
		return nil, fmt.Errorf("construct ledger: %w", err)
	}

	if err := v.Bind(ctx, l.Identity()); err != nil {
		return nil, fmt.Errorf("bind validator to ledger: %w", err)
	}

	record := DeploymentRecord{
		RecordID:    uuid.New(),
		NetworkID:   cfg.NetworkID,
		Deployer:    cfg.Deployer,
		Approver:    crypto.PubkeyToAddress(*cfg.ApproverKey),
		ValidatorID: v.Identity(),
		LedgerID:    l.Identity(),
		DeployedAt:  time.Now().UTC(),
	}

	logger.Log(ctx, log.LevelInfo, "custody pair deployed",
		log.String("record_id", record.RecordID.String()),
		log.Uint64("network_id", record.NetworkID),
		log.String("validator", record.ValidatorID.Hex()),
		log.String("ledger", record.LedgerID.Hex()),
		log.String("approver", record.Approver.Hex()),
	)

	return &Deployment{Record: record, Validator: v, Ledger: l}, nil
}

// HealthCheck verifies the deployed pair is wired and functional: the binding
// points at the ledger, the ledger points at the validator, and balance and
// digest queries answer.
func (d *Deployment) HealthCheck(ctx context.Context) error {
	if d == nil || d.Validator == nil || d.Ledger == nil {
		return fmt.Errorf("%w: deployment is incomplete", ErrUnhealthy)
	}

	bound, ok := d.Validator.Bound()
	if !ok {
		return fmt.Errorf("%w: validator has no bound ledger", ErrUnhealthy)
	}

	if bound != d.Ledger.Identity() {
		return fmt.Errorf("%w: validator bound to %s, ledger is %s",
			ErrUnhealthy, bound.Hex(), d.Ledger.Identity().Hex())
	}

	if d.Ledger.Authorizer() != d.Validator {
		return fmt.Errorf("%w: ledger is not wired to the deployed validator", ErrUnhealthy)
	}

	if d.Ledger.AccountedBalance() == nil {
		return fmt.Errorf("%w: accounted balance is unreadable", ErrUnhealthy)
	}

	nonce, err := custody.NewNonce()
	if err != nil {
		return fmt.Errorf("%w: nonce generation failed: %v", ErrUnhealthy, err)
	}

	// Preview exercises digest computation and the consumption store without
	// consuming anything.
	if _, err := d.Validator.Preview(ctx,
		d.Ledger.Identity(), d.Record.Deployer, big.NewInt(0), nonce, nil); err != nil {
		return fmt.Errorf("%w: authorization preview failed: %v", ErrUnhealthy, err)
	}

	return nil
}
