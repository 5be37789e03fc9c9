package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-custody/custody/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the exchange custody records are published to when the
// sink is constructed without an explicit one.
const DefaultExchange = "custody.events"

// ErrNilChannel is returned when a sink is constructed without a channel.
var ErrNilChannel = errors.New("rabbitmq channel is required")

// Channel is the slice of the AMQP channel API the sink uses.
type Channel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
}

// Sink publishes records as persistent JSON messages. The record kind is the
// routing key, so consumers bind queues per operation type.
type Sink struct {
	channel  Channel
	exchange string
}

var _ events.Sink = (*Sink)(nil)

// NewSink creates a sink over an established channel. An empty exchange
// selects DefaultExchange.
func NewSink(channel Channel, exchange string) (*Sink, error) {
	if channel == nil {
		return nil, ErrNilChannel
	}

	if exchange == "" {
		exchange = DefaultExchange
	}

	return &Sink{channel: channel, exchange: exchange}, nil
}

// Publish implements events.Sink.
func (s *Sink) Publish(ctx context.Context, record events.Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal custody record: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     record.ID.String(),
		CorrelationId: record.CorrelationID,
		Timestamp:     record.OccurredAt,
		Type:          string(record.Kind),
		Body:          body,
	}

	if err := s.channel.PublishWithContext(ctx, s.exchange, string(record.Kind), false, false, msg); err != nil {
		return fmt.Errorf("publish custody record: %w", err)
	}

	return nil
}
