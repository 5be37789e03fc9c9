package events

import (
	"context"
	"math/big"
	"time"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/google/uuid"
)

// Kind discriminates record payloads on the wire.
type Kind string

const (
	// KindConsumption is emitted by the validator when an authorization is consumed.
	KindConsumption Kind = "custody.authorization.consumed"
	// KindDeposit is emitted by the ledger after a deposit commits.
	KindDeposit Kind = "custody.ledger.deposited"
	// KindWithdrawal is emitted by the ledger after a withdrawal completes.
	KindWithdrawal Kind = "custody.ledger.withdrawn"
)

// Record is the envelope for one committed custody operation. Exactly one of
// the detail pointers is set, matching Kind.
type Record struct {
	ID            uuid.UUID `json:"id"`
	Kind          Kind      `json:"kind"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId,omitempty"`

	Consumption *ConsumptionRecord `json:"consumption,omitempty"`
	Deposit     *DepositRecord     `json:"deposit,omitempty"`
	Withdrawal  *WithdrawalRecord  `json:"withdrawal,omitempty"`
}

// ConsumptionRecord describes one consumed authorization.
type ConsumptionRecord struct {
	AuthorizationID custody.AuthorizationID `json:"authorizationId"`
	Validator       custody.Identity        `json:"validator"`
	Ledger          custody.Identity        `json:"ledger"`
	Recipient       custody.Identity        `json:"recipient"`
	Signer          custody.Identity        `json:"signer"`
	Amount          *big.Int                `json:"amount"`
}

// DepositRecord describes one committed deposit.
type DepositRecord struct {
	Ledger     custody.Identity `json:"ledger"`
	From       custody.Identity `json:"from"`
	Amount     *big.Int         `json:"amount"`
	NewBalance *big.Int         `json:"newBalance"`
}

// WithdrawalRecord describes one completed withdrawal.
type WithdrawalRecord struct {
	Ledger           custody.Identity        `json:"ledger"`
	Recipient        custody.Identity        `json:"recipient"`
	AuthorizationID  custody.AuthorizationID `json:"authorizationId"`
	Amount           *big.Int                `json:"amount"`
	RemainingBalance *big.Int                `json:"remainingBalance"`
}

// newRecord stamps the envelope. The correlation ID is resolved from the
// request context so records line up with logs and traces.
func newRecord(ctx context.Context, kind Kind) Record {
	_, _, correlationID := custody.NewTrackingFromContext(ctx)

	return Record{
		ID:            uuid.New(),
		Kind:          kind,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// NewConsumption builds a consumption record envelope.
func NewConsumption(ctx context.Context, detail ConsumptionRecord) Record {
	record := newRecord(ctx, KindConsumption)
	record.Consumption = &detail

	return record
}

// NewDeposit builds a deposit record envelope.
func NewDeposit(ctx context.Context, detail DepositRecord) Record {
	record := newRecord(ctx, KindDeposit)
	record.Deposit = &detail

	return record
}

// NewWithdrawal builds a withdrawal record envelope.
func NewWithdrawal(ctx context.Context, detail WithdrawalRecord) Record {
	record := newRecord(ctx, KindWithdrawal)
	record.Withdrawal = &detail

	return record
}
