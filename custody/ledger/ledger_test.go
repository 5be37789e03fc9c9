package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/LerianStudio/lib-custody/custody/approval"
	"github.com/LerianStudio/lib-custody/custody/events"
	"github.com/LerianStudio/lib-custody/custody/signing"
	"github.com/LerianStudio/lib-custody/custody/validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNetworkID = 31337

var (
	validatorID = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	ledgerID    = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	recipientID = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	depositorID = common.HexToAddress("0x00000000000000000000000000000000000000f4")
)

type transferCall struct {
	recipient custody.Identity
	amount    *big.Int
}

type fakeTransferer struct {
	mu    sync.Mutex
	calls []transferCall
	err   error
	hook  func(ctx context.Context, recipient custody.Identity, amount *big.Int) error
}

func (f *fakeTransferer) Transfer(ctx context.Context, recipient custody.Identity, amount *big.Int) error {
	f.mu.Lock()
	f.calls = append(f.calls, transferCall{recipient: recipient, amount: new(big.Int).Set(amount)})
	hook := f.hook
	err := f.err
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, recipient, amount)
	}

	return err
}

func (f *fakeTransferer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

type harness struct {
	ledger     *Ledger
	validator  *validator.Validator
	signer     *signing.Signer
	sink       *events.MemorySink
	transferer *fakeTransferer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	key, err := signing.GenerateApproverKey()
	require.NoError(t, err)

	v, err := validator.New(validator.Config{
		NetworkID:   testNetworkID,
		InstanceID:  validatorID,
		ApproverKey: &key.PublicKey,
	})
	require.NoError(t, err)

	sink := events.NewMemorySink()
	transferer := &fakeTransferer{}

	l, err := New(Config{
		InstanceID: ledgerID,
		Authorizer: v,
		Transferer: transferer,
		Sink:       sink,
	})
	require.NoError(t, err)

	require.NoError(t, v.Bind(context.Background(), l.Identity()))

	signer, err := signing.New(approval.NewDomain(testNetworkID, validatorID), key)
	require.NoError(t, err)

	return &harness{ledger: l, validator: v, signer: signer, sink: sink, transferer: transferer}
}

func (h *harness) approvalFor(t *testing.T, recipient custody.Identity, amount *big.Int) (approval.Message, []byte) {
	t.Helper()

	nonce, err := custody.NewNonce()
	require.NoError(t, err)

	message := approval.Message{
		Ledger:    h.ledger.Identity(),
		Recipient: recipient,
		Amount:    amount,
		Nonce:     nonce,
	}

	_, signature, err := h.signer.SignApproval(message)
	require.NoError(t, err)

	return message, signature
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := New(Config{Authorizer: h.validator, Transferer: h.transferer})
	require.ErrorIs(t, err, custody.ErrInvalidIdentity)

	_, err = New(Config{InstanceID: ledgerID, Transferer: h.transferer})
	require.ErrorIs(t, err, ErrNilAuthorizer)

	_, err = New(Config{InstanceID: ledgerID, Authorizer: h.validator})
	require.ErrorIs(t, err, ErrNilTransferer)
}

func TestDeposit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	assert.Equal(t, 0, h.ledger.AccountedBalance().Sign())

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(2_000_000_000)))
	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(2_000_000_000)))

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(500)))
	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(2_000_000_500)))

	records := h.sink.OfKind(events.KindDeposit)
	require.Len(t, records, 2)
	require.NotNil(t, records[0].Deposit)
	assert.Equal(t, ledgerID, records[0].Deposit.Ledger)
	assert.Equal(t, depositorID, records[0].Deposit.From)
	assert.Equal(t, 0, records[0].Deposit.Amount.Cmp(big.NewInt(2_000_000_000)))
	assert.Equal(t, 0, records[1].Deposit.NewBalance.Cmp(big.NewInt(2_000_000_500)))
}

func TestDepositRejectsInvalidAmounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	err := h.ledger.Deposit(ctx, depositorID, nil)
	require.ErrorIs(t, err, custody.ErrInvalidAmount)

	err = h.ledger.Deposit(ctx, depositorID, big.NewInt(-1))
	require.ErrorIs(t, err, custody.ErrInvalidAmount)

	assert.Equal(t, 0, h.ledger.AccountedBalance().Sign())
}

func TestWithdrawEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(2_000_000_000)))

	message, signature := h.approvalFor(t, recipientID, big.NewInt(400_000_000))

	id, err := h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)
	require.NoError(t, err)

	expectedID, err := approval.ComputeID(h.signer.Domain(), message)
	require.NoError(t, err)
	assert.Equal(t, expectedID, id)

	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(1_600_000_000)))

	require.Equal(t, 1, h.transferer.callCount())
	assert.Equal(t, recipientID, h.transferer.calls[0].recipient)
	assert.Equal(t, 0, h.transferer.calls[0].amount.Cmp(big.NewInt(400_000_000)))

	records := h.sink.OfKind(events.KindWithdrawal)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Withdrawal)
	assert.Equal(t, expectedID, records[0].Withdrawal.AuthorizationID)
	assert.Equal(t, recipientID, records[0].Withdrawal.Recipient)
	assert.Equal(t, 0, records[0].Withdrawal.Amount.Cmp(big.NewInt(400_000_000)))
	assert.Equal(t, 0, records[0].Withdrawal.RemainingBalance.Cmp(big.NewInt(1_600_000_000)))
}

func TestWithdrawValidatesInputsFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(100)))

	var nonce custody.Nonce

	_, err := h.ledger.Withdraw(ctx, custody.Identity{}, big.NewInt(1), nonce, []byte("junk"))
	require.ErrorIs(t, err, custody.ErrInvalidRecipient)

	_, err = h.ledger.Withdraw(ctx, recipientID, nil, nonce, []byte("junk"))
	require.ErrorIs(t, err, custody.ErrInvalidAmount)

	_, err = h.ledger.Withdraw(ctx, recipientID, big.NewInt(-5), nonce, []byte("junk"))
	require.ErrorIs(t, err, custody.ErrInvalidAmount)

	assert.Equal(t, 0, h.transferer.callCount())
	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(100)))
}

func TestWithdrawInsufficientBalanceDoesNotConsume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(300_000_000)))

	message, signature := h.approvalFor(t, recipientID, big.NewInt(400_000_000))

	_, err := h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)

	var ibe custody.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.Equal(t, 0, ibe.Available.Cmp(big.NewInt(300_000_000)))
	assert.Equal(t, 0, ibe.Requested.Cmp(big.NewInt(400_000_000)))
	assert.Equal(t, 0, h.transferer.callCount())

	// The under-funded attempt must not have consumed the approval: after a
	// top-up the same approval withdraws.
	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(100_000_000)))

	_, err = h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)
	require.NoError(t, err)
	assert.Equal(t, 0, h.ledger.AccountedBalance().Sign())
}

func TestWithdrawAuthorizationFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(1_000)))

	nonce, err := custody.NewNonce()
	require.NoError(t, err)

	_, err = h.ledger.Withdraw(ctx, recipientID, big.NewInt(1), nonce, []byte("junk"))

	var ae custody.AuthorizationError
	require.ErrorAs(t, err, &ae)
	require.ErrorIs(t, err, custody.ErrInvalidSignature)

	assert.Equal(t, 0, h.transferer.callCount())
	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(1_000)))
}

func TestWithdrawReplayRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(1_000)))

	message, signature := h.approvalFor(t, recipientID, big.NewInt(400))

	_, err := h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)
	require.NoError(t, err)

	_, err = h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)
	require.ErrorIs(t, err, custody.ErrAlreadyConsumed)

	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(600)))
	assert.Equal(t, 1, h.transferer.callCount())
}

func TestWithdrawTransferFailureRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(1_000)))

	transferErr := errors.New("settlement rail unavailable")
	h.transferer.err = transferErr

	message, signature := h.approvalFor(t, recipientID, big.NewInt(400))

	_, err := h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)

	var te custody.TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, recipientID, te.Recipient)
	require.ErrorIs(t, err, transferErr)

	// Balance restored, no withdrawal record.
	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(1_000)))
	assert.Empty(t, h.sink.OfKind(events.KindWithdrawal))

	// The approval was spent by the attempt: retrying it is a replay even
	// though the transfer rail is healthy again.
	h.transferer.err = nil

	_, err = h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)
	require.ErrorIs(t, err, custody.ErrAlreadyConsumed)
	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(1_000)))
}

func TestReentrancyGuard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(1_000)))

	reentrant, reentrantSig := h.approvalFor(t, recipientID, big.NewInt(100))

	var (
		balanceDuringTransfer *big.Int
		reentrantWithdrawErr  error
		reentrantDepositErr   error
	)

	h.transferer.hook = func(ctx context.Context, _ custody.Identity, _ *big.Int) error {
		balanceDuringTransfer = h.ledger.AccountedBalance()

		_, reentrantWithdrawErr = h.ledger.Withdraw(ctx,
			reentrant.Recipient, reentrant.Amount, reentrant.Nonce, reentrantSig)
		reentrantDepositErr = h.ledger.Deposit(ctx, depositorID, big.NewInt(1))

		return nil
	}

	message, signature := h.approvalFor(t, recipientID, big.NewInt(400))

	_, err := h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)
	require.NoError(t, err)

	// The decrement is visible from inside the transfer callback.
	require.NotNil(t, balanceDuringTransfer)
	assert.Equal(t, 0, balanceDuringTransfer.Cmp(big.NewInt(600)))

	require.ErrorIs(t, reentrantWithdrawErr, custody.ErrReentrancy)
	require.ErrorIs(t, reentrantDepositErr, custody.ErrReentrancy)

	// Only the outer withdrawal committed.
	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(600)))
	assert.Equal(t, 1, h.transferer.callCount())
}

func TestConcurrentWithdrawalsSameApproval(t *testing.T) {
	t.Parallel()

	const contenders = 16

	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(1_000_000)))

	message, signature := h.approvalFor(t, recipientID, big.NewInt(100))

	var (
		successes int64
		start     sync.WaitGroup
		done      sync.WaitGroup
	)

	start.Add(1)

	for range contenders {
		done.Add(1)

		go func() {
			defer done.Done()
			start.Wait()

			_, err := h.ledger.Withdraw(ctx,
				message.Recipient, message.Amount, message.Nonce, signature)
			if err == nil {
				atomic.AddInt64(&successes, 1)

				return
			}

			// Losers observe the replay, or the transfer window of the winner.
			if !errors.Is(err, custody.ErrAlreadyConsumed) && !errors.Is(err, custody.ErrReentrancy) {
				t.Errorf("unexpected loser error: %v", err)
			}
		}()
	}

	start.Done()
	done.Wait()

	assert.Equal(t, int64(1), successes)
	assert.Equal(t, 0, h.ledger.AccountedBalance().Cmp(big.NewInt(999_900)))
	assert.Equal(t, 1, h.transferer.callCount())
}

func TestSequentialIndependentWithdrawals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ledger.Deposit(ctx, depositorID, big.NewInt(1_000)))

	for range 10 {
		message, signature := h.approvalFor(t, recipientID, big.NewInt(100))

		_, err := h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)
		require.NoError(t, err)
	}

	assert.Equal(t, 0, h.ledger.AccountedBalance().Sign())
	assert.Equal(t, 10, h.transferer.callCount())

	// Fully drained: one more coin cannot leave.
	message, signature := h.approvalFor(t, recipientID, big.NewInt(1))

	_, err := h.ledger.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)

	var ibe custody.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
}

func TestWithdrawSinkFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	key, err := signing.GenerateApproverKey()
	require.NoError(t, err)

	v, err := validator.New(validator.Config{
		NetworkID:   testNetworkID,
		InstanceID:  validatorID,
		ApproverKey: &key.PublicKey,
	})
	require.NoError(t, err)

	l, err := New(Config{
		InstanceID: ledgerID,
		Authorizer: v,
		Transferer: &fakeTransferer{},
		Sink:       failingSink{err: errors.New("broker down")},
	})
	require.NoError(t, err)
	require.NoError(t, v.Bind(ctx, l.Identity()))

	signer, err := signing.New(approval.NewDomain(testNetworkID, validatorID), key)
	require.NoError(t, err)

	require.NoError(t, l.Deposit(ctx, depositorID, big.NewInt(100)))

	nonce, err := custody.NewNonce()
	require.NoError(t, err)

	message := approval.Message{
		Ledger:    l.Identity(),
		Recipient: recipientID,
		Amount:    big.NewInt(40),
		Nonce:     nonce,
	}

	_, signature, err := signer.SignApproval(message)
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, message.Recipient, message.Amount, message.Nonce, signature)
	require.NoError(t, err)
	assert.Equal(t, 0, l.AccountedBalance().Cmp(big.NewInt(60)))
}

type failingSink struct {
	err error
}

func (s failingSink) Publish(context.Context, events.Record) error {
	return s.err
}
