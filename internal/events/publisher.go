package events

import (
	"context"
	"fmt"

	"github.com/arteita/fretebot/pkg/logging"
)

// Publisher emits domain events for a given aggregate.
type Publisher interface {
	Publish(ctx context.Context, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) error
}

type envelopeSink interface {
	Insert(ctx context.Context, env Envelope) error
}

// OutboxPublisher writes events to the outbox; a Deliverer forwards them later.
type OutboxPublisher struct {
	store envelopeSink
}

func NewOutboxPublisher(store *OutboxStore) *OutboxPublisher {
	if store == nil {
		panic("events: outbox store required")
	}
	return &OutboxPublisher{store: store}
}

var _ Publisher = (*OutboxPublisher)(nil)

func (p *OutboxPublisher) Publish(ctx context.Context, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) error {
	env, err := NewEnvelope(aggregate, evt, opts...)
	if err != nil {
		return err
	}
	if err := p.store.Insert(ctx, env); err != nil {
		return fmt.Errorf("events: publish %s: %w", env.EventType, err)
	}
	return nil
}

// LogPublisher only logs events. Used when neither a database nor a broker is configured.
type LogPublisher struct {
	logger *logging.Logger
}

func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogPublisher{logger: logger}
}

var _ Publisher = (*LogPublisher)(nil)

func (p *LogPublisher) Publish(ctx context.Context, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) error {
	env, err := NewEnvelope(aggregate, evt, opts...)
	if err != nil {
		return err
	}
	p.logger.Info("domain event", "event_id", env.EventID, "type", env.EventType, "aggregate", env.Aggregate)
	return nil
}
