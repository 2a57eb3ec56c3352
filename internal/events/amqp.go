package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arteita/fretebot/pkg/logging"
	"github.com/rabbitmq/amqp091-go"
)

// DefaultSource identifies this service in published message metadata.
const DefaultSource = "fretebot"

// WireMeta is the metadata block consumers read before the data.
type WireMeta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	Source        string    `json:"source"`
	Aggregate     string    `json:"aggregate,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// WireMessage is the JSON body published on the exchange.
type WireMessage struct {
	Meta WireMeta        `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// ToWire converts a stored envelope into the broker representation.
func ToWire(env Envelope, source string) WireMessage {
	if strings.TrimSpace(source) == "" {
		source = DefaultSource
	}
	return WireMessage{
		Meta: WireMeta{
			ID:            env.EventID.String(),
			Type:          env.EventType,
			OccurredAt:    env.OccurredAt(),
			Source:        source,
			Aggregate:     env.Aggregate,
			CorrelationID: env.CorrelationID,
		},
		Data: env.Payload,
	}
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher publishes envelopes to a durable topic exchange using the
// event type as routing key. It serves both as a direct Publisher and as the
// outbox DeliveryHandler.
type AMQPPublisher struct {
	conn        *amqp091.Connection
	openChannel func() (amqpChannel, error)
	exchange    string
	source      string
	logger      *logging.Logger
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string, logger *logging.Logger) (*AMQPPublisher, error) {
	if strings.TrimSpace(exchange) == "" {
		return nil, fmt.Errorf("events: exchange required")
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange %s: %w", exchange, err)
	}

	p := newAMQPPublisher(func() (amqpChannel, error) { return conn.Channel() }, exchange, logger)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(open func() (amqpChannel, error), exchange string, logger *logging.Logger) *AMQPPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &AMQPPublisher{
		openChannel: open,
		exchange:    exchange,
		source:      DefaultSource,
		logger:      logger,
	}
}

var (
	_ Publisher       = (*AMQPPublisher)(nil)
	_ DeliveryHandler = (*AMQPPublisher)(nil)
)

func (p *AMQPPublisher) Publish(ctx context.Context, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) error {
	env, err := NewEnvelope(aggregate, evt, opts...)
	if err != nil {
		return err
	}
	return p.PublishEnvelope(ctx, env)
}

// Handle forwards an outbox entry to the exchange.
func (p *AMQPPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	env, err := entry.Envelope()
	if err != nil {
		return err
	}
	return p.PublishEnvelope(ctx, env)
}

func (p *AMQPPublisher) PublishEnvelope(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(ToWire(env, p.source))
	if err != nil {
		return fmt.Errorf("events: marshal wire message: %w", err)
	}
	ch, err := p.openChannel()
	if err != nil {
		return fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()

	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = env.EventID.String()
	}
	err = ch.PublishWithContext(ctx, p.exchange, env.EventType, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.EventID.String(),
		CorrelationId: correlationID,
		Timestamp:     env.OccurredAt(),
		Type:          env.EventType,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", env.EventType, err)
	}
	p.logger.Debug("event published", "exchange", p.exchange, "key", env.EventType, "event_id", env.EventID)
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
