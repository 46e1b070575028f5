package hooks

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

// AMQPMirror republishes every hook event it receives onto a topic exchange
// for external consumers (audit pipelines, analytics). It is one specific
// subscriber wired into the bus like any other — never a general broker —
// so it is only reachable through Bus.Emit, never addressed directly by
// route handlers.
type AMQPMirror struct {
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

// NewAMQPMirror declares exchange (a topic exchange) on conn and returns a
// Subscriber ready to register on the bus.
func NewAMQPMirror(conn *amqp.Connection, exchange string, logger zerolog.Logger) (*AMQPMirror, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &AMQPMirror{channel: ch, exchange: exchange, logger: logger}, nil
}

// Handle implements Subscriber. A publish failure is logged and swallowed —
// the mirror is a best-effort side channel, never allowed to make the
// originating request fail.
func (m *AMQPMirror) Handle(ctx context.Context, event types.HookEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		m.logger.Error().Err(err).Str("topic", event.TopicName()).Msg("failed to marshal hook event for amqp mirror")
		return
	}

	err = m.channel.PublishWithContext(ctx, m.exchange, event.TopicName(), false, false, amqp.Publishing{
		ContentType: event.ContentType(),
		Body:        body,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("topic", event.TopicName()).Msg("failed to publish hook event to amqp mirror")
	}
}

// Close releases the underlying channel.
func (m *AMQPMirror) Close() error {
	return m.channel.Close()
}
