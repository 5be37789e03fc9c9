package events

import (
	"context"
	"sync"
	"time"

	"github.com/LerianStudio/lib-custody/custody/log"
)

// Sink receives committed-operation records.
//
// Publish runs after the operation's state change is final. Implementations
// should return quickly; callers log a failed publish and keep the committed
// result.
type Sink interface {
	Publish(ctx context.Context, record Record) error
}

// ----------------------------------------------------------------------------
// MemorySink
// ----------------------------------------------------------------------------

// MemorySink retains records in memory, in publish order. Used by tests and
// local tooling.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish implements Sink.
func (s *MemorySink) Publish(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)

	return nil
}

// Records returns a copy of everything published so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)

	return out
}

// OfKind returns the published records matching kind, in publish order.
func (s *MemorySink) OfKind(kind Kind) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record

	for _, record := range s.records {
		if record.Kind == kind {
			out = append(out, record)
		}
	}

	return out
}

// ----------------------------------------------------------------------------
// LogSink
// ----------------------------------------------------------------------------

// LogSink writes each record to a structured logger. It is the default sink
// for deployments without a broker.
type LogSink struct {
	logger log.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a sink over logger. A nil logger degrades to NopLogger.
func NewLogSink(logger log.Logger) *LogSink {
	if logger == nil {
		logger = &log.NopLogger{}
	}

	return &LogSink{logger: logger}
}

// Publish implements Sink.
func (s *LogSink) Publish(ctx context.Context, record Record) error {
	fields := []log.Field{
		log.String("record_id", record.ID.String()),
		log.String("kind", string(record.Kind)),
		log.String("occurred_at", record.OccurredAt.Format(time.RFC3339Nano)),
		log.String("correlation_id", record.CorrelationID),
	}

	switch {
	case record.Consumption != nil:
		fields = append(fields,
			log.String("authorization_id", record.Consumption.AuthorizationID.Hex()),
			log.String("ledger", record.Consumption.Ledger.Hex()),
			log.String("recipient", record.Consumption.Recipient.Hex()),
			log.String("amount", record.Consumption.Amount.String()),
		)
	case record.Deposit != nil:
		fields = append(fields,
			log.String("ledger", record.Deposit.Ledger.Hex()),
			log.String("from", record.Deposit.From.Hex()),
			log.String("amount", record.Deposit.Amount.String()),
			log.String("new_balance", record.Deposit.NewBalance.String()),
		)
	case record.Withdrawal != nil:
		fields = append(fields,
			log.String("authorization_id", record.Withdrawal.AuthorizationID.Hex()),
			log.String("ledger", record.Withdrawal.Ledger.Hex()),
			log.String("recipient", record.Withdrawal.Recipient.Hex()),
			log.String("amount", record.Withdrawal.Amount.String()),
			log.String("remaining_balance", record.Withdrawal.RemainingBalance.String()),
		)
	}

	s.logger.Log(ctx, log.LevelInfo, "custody record", fields...)

	return nil
}

// ----------------------------------------------------------------------------
// NopSink
// ----------------------------------------------------------------------------

// NopSink discards every record.
type NopSink struct{}

var _ Sink = NopSink{}

// Publish implements Sink.
func (NopSink) Publish(context.Context, Record) error {
	return nil
}
