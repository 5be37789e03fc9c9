package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/LerianStudio/lib-custody/custody/events"
	"github.com/LerianStudio/lib-custody/custody/log"
	"github.com/LerianStudio/lib-custody/custody/opentelemetry"
)

var (
	// ErrNilAuthorizer is returned when a ledger is constructed without a validator.
	ErrNilAuthorizer = errors.New("authorization validator is required")
	// ErrNilTransferer is returned when a ledger is constructed without a transfer mechanism.
	ErrNilTransferer = errors.New("transfer mechanism is required")
)

// Authorizer is the consumer-side view of the authorization validator.
type Authorizer interface {
	VerifyAndConsume(
		ctx context.Context,
		caller custody.Identity,
		ledgerID, recipient custody.Identity,
		amount *big.Int,
		nonce custody.Nonce,
		signature []byte,
	) (custody.AuthorizationID, error)
}

// Transferer performs the external transfer step of a withdrawal. It runs
// after the accounted balance is decremented and may hand control to
// arbitrary recipient logic.
type Transferer interface {
	Transfer(ctx context.Context, recipient custody.Identity, amount *big.Int) error
}

// TransferFunc adapts a function to the Transferer interface.
type TransferFunc func(ctx context.Context, recipient custody.Identity, amount *big.Int) error

// Transfer implements Transferer.
func (f TransferFunc) Transfer(ctx context.Context, recipient custody.Identity, amount *big.Int) error {
	return f(ctx, recipient, amount)
}

// Config carries everything a ledger needs at construction time.
type Config struct {
	// InstanceID is the ledger's own identity, fixed at deployment.
	InstanceID custody.Identity

	// Authorizer is the validator the ledger submits approvals to. Required.
	Authorizer Authorizer

	// Transferer performs the external value movement. Required.
	Transferer Transferer

	// Sink receives deposit and withdrawal records. Nil discards them.
	Sink events.Sink
}

// Ledger is the account of record for held value.
type Ledger struct {
	id       custody.Identity
	auth     Authorizer
	transfer Transferer
	sink     events.Sink

	mu           sync.Mutex
	balance      *big.Int
	transferring bool
}

// New builds a ledger from cfg with a zero accounted balance.
func New(cfg Config) (*Ledger, error) {
	if custody.IsNilIdentity(cfg.InstanceID) {
		return nil, custody.NewError(custody.ErrorInvalidIdentity, "instanceId",
			"ledger identity must be non-zero")
	}

	if cfg.Authorizer == nil {
		return nil, ErrNilAuthorizer
	}

	if cfg.Transferer == nil {
		return nil, ErrNilTransferer
	}

	sink := cfg.Sink
	if sink == nil {
		sink = events.NopSink{}
	}

	return &Ledger{
		id:       cfg.InstanceID,
		auth:     cfg.Authorizer,
		transfer: cfg.Transferer,
		sink:     sink,
		balance:  big.NewInt(0),
	}, nil
}

// Identity returns the ledger's own identity.
func (l *Ledger) Identity() custody.Identity {
	return l.id
}

// Authorizer returns the validator the ledger is wired to.
func (l *Ledger) Authorizer() Authorizer {
	return l.auth
}

// AccountedBalance returns the current accounted balance. Safe to call at any
// time, including from transfer callbacks, where it reflects the decrement
// already applied for the withdrawal in flight.
func (l *Ledger) AccountedBalance() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(big.Int).Set(l.balance)
}

// Deposit credits amount to the accounted balance. Deposits are ungated; from
// is recorded for the audit trail only.
func (l *Ledger) Deposit(ctx context.Context, from custody.Identity, amount *big.Int) error {
	logger, tracer, _ := custody.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "custody.ledger.deposit")
	defer span.End()

	if amount == nil || amount.Sign() < 0 {
		err := custody.NewError(custody.ErrorInvalidAmount, "amount",
			"deposit amount must be a non-negative integer")
		opentelemetry.HandleSpanError(span, "deposit rejected", err)

		return err
	}

	l.mu.Lock()

	if l.transferring {
		l.mu.Unlock()

		err := custody.NewError(custody.ErrorReentrancy, "amount",
			"deposit during an in-flight transfer")
		opentelemetry.HandleSpanError(span, "deposit rejected", err)

		return err
	}

	l.balance.Add(l.balance, amount)
	newBalance := new(big.Int).Set(l.balance)
	l.mu.Unlock()

	record := events.NewDeposit(ctx, events.DepositRecord{
		Ledger:     l.id,
		From:       from,
		Amount:     new(big.Int).Set(amount),
		NewBalance: newBalance,
	})

	if err := l.sink.Publish(ctx, record); err != nil {
		logger.Log(ctx, log.LevelWarn, "deposit record publish failed", log.Err(err))
	}

	logger.Log(ctx, log.LevelInfo, "deposit accounted",
		log.String("ledger", l.id.Hex()),
		log.String("from", from.Hex()),
		log.String("amount", amount.String()),
		log.String("new_balance", newBalance.String()),
	)

	return nil
}

// Withdraw releases amount to recipient against a signed approval.
//
// The accounted balance is checked before the validator call, so an
// under-funded request never consumes an approval, and decremented before the
// transfer runs. A failed transfer restores the balance but leaves the
// approval consumed.
func (l *Ledger) Withdraw(
	ctx context.Context,
	recipient custody.Identity,
	amount *big.Int,
	nonce custody.Nonce,
	signature []byte,
) (custody.AuthorizationID, error) {
	logger, tracer, _ := custody.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "custody.ledger.withdraw")
	defer span.End()

	if custody.IsNilIdentity(recipient) {
		err := custody.NewError(custody.ErrorInvalidRecipient, "recipient",
			"recipient must be a non-zero identity")
		opentelemetry.HandleSpanError(span, "withdrawal rejected", err)

		return custody.AuthorizationID{}, err
	}

	if amount == nil || amount.Sign() < 0 {
		err := custody.NewError(custody.ErrorInvalidAmount, "amount",
			"withdrawal amount must be a non-negative integer")
		opentelemetry.HandleSpanError(span, "withdrawal rejected", err)

		return custody.AuthorizationID{}, err
	}

	l.mu.Lock()

	if l.transferring {
		l.mu.Unlock()

		err := custody.NewError(custody.ErrorReentrancy, "recipient",
			"withdrawal during an in-flight transfer")
		opentelemetry.HandleSpanError(span, "withdrawal rejected", err)

		return custody.AuthorizationID{}, err
	}

	if l.balance.Cmp(amount) < 0 {
		err := custody.InsufficientBalanceError{
			Available: new(big.Int).Set(l.balance),
			Requested: new(big.Int).Set(amount),
		}
		l.mu.Unlock()
		opentelemetry.HandleSpanError(span, "withdrawal rejected", err)

		return custody.AuthorizationID{}, err
	}

	// The lock stays held across verification so the balance check and the
	// decrement are atomic with respect to other withdrawals.
	id, err := l.auth.VerifyAndConsume(ctx, l.id, l.id, recipient, amount, nonce, signature)
	if err != nil {
		l.mu.Unlock()

		authErr := custody.AuthorizationError{Reason: err}
		opentelemetry.HandleSpanError(span, "withdrawal rejected", authErr)

		return custody.AuthorizationID{}, authErr
	}

	l.balance.Sub(l.balance, amount)
	remaining := new(big.Int).Set(l.balance)
	l.transferring = true
	l.mu.Unlock()

	transferErr := l.transfer.Transfer(ctx, recipient, amount)

	l.mu.Lock()
	l.transferring = false

	if transferErr != nil {
		// Restore the accounted balance. The consumed authorization stays
		// consumed: a failed transfer does not resurrect its approval.
		l.balance.Add(l.balance, amount)
		l.mu.Unlock()

		err := custody.TransferError{Recipient: recipient, Cause: transferErr}
		opentelemetry.HandleSpanError(span, "transfer failed", err)
		logger.Log(ctx, log.LevelError, "withdrawal transfer failed",
			log.String("authorization_id", id.Hex()),
			log.String("recipient", recipient.Hex()),
			log.Err(transferErr),
		)

		return custody.AuthorizationID{}, err
	}

	l.mu.Unlock()

	record := events.NewWithdrawal(ctx, events.WithdrawalRecord{
		Ledger:           l.id,
		Recipient:        recipient,
		AuthorizationID:  id,
		Amount:           new(big.Int).Set(amount),
		RemainingBalance: remaining,
	})

	if err := l.sink.Publish(ctx, record); err != nil {
		logger.Log(ctx, log.LevelWarn, "withdrawal record publish failed",
			log.String("authorization_id", id.Hex()),
			log.Err(err),
		)
	}

	logger.Log(ctx, log.LevelInfo, "withdrawal completed",
		log.String("authorization_id", id.Hex()),
		log.String("ledger", l.id.Hex()),
		log.String("recipient", recipient.Hex()),
		log.String("amount", amount.String()),
		log.String("remaining_balance", remaining.String()),
	)

	return id, nil
}
