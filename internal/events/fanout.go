package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// FanOut hands every entry to each handler. All handlers run even when one
// fails; the joined error makes the deliverer retry the entry, so handlers
// must tolerate seeing an entry more than once.
type FanOut []DeliveryHandler

var _ DeliveryHandler = FanOut(nil)

func (f FanOut) Handle(ctx context.Context, entry OutboxEntry) error {
	var errs []error
	for _, h := range f {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DirectPublisher delivers each event to its handler synchronously, skipping
// the outbox. Used when no database is configured.
type DirectPublisher struct {
	handler DeliveryHandler
}

func NewDirectPublisher(handler DeliveryHandler) *DirectPublisher {
	if handler == nil {
		panic("events: delivery handler required")
	}
	return &DirectPublisher{handler: handler}
}

var _ Publisher = (*DirectPublisher)(nil)

func (p *DirectPublisher) Publish(ctx context.Context, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) error {
	env, err := NewEnvelope(aggregate, evt, opts...)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	return p.handler.Handle(ctx, OutboxEntry{
		ID:        env.EventID,
		Aggregate: env.Aggregate,
		Type:      env.EventType,
		Payload:   payload,
		CreatedAt: env.OccurredAt(),
	})
}
