// Package rabbitmq publishes custody records to a RabbitMQ exchange.
//
// The sink depends on the narrow Channel interface rather than a concrete
// *amqp.Channel so deployments can hand it a confirm-mode channel, a pooled
// channel, or a test double.
package rabbitmq
