package inbound

import (
	"context"
	"fmt"

	"github.com/arteita/fretebot/internal/identity"
	"github.com/arteita/fretebot/internal/messaging"
	"github.com/arteita/fretebot/internal/observability/metrics"
	"github.com/arteita/fretebot/pkg/logging"
)

// Dispatcher drops duplicate deliveries and enqueues the rest. It is the
// bridge between the webhook handler and the worker pool.
type Dispatcher struct {
	queue   Queue
	dedup   Deduper
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDeduper(d Deduper) DispatcherOption { return func(x *Dispatcher) { x.dedup = d } }
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(x *Dispatcher) { x.metrics = m }
}

func NewDispatcher(queue Queue, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if queue == nil {
		panic("inbound: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{queue: queue, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ messaging.Dispatcher = (*Dispatcher)(nil)

// Dispatch enqueues in unless its message id was already accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, in messaging.Inbound) error {
	id := in.Message.ID
	claimed := false
	if d.dedup != nil && id != "" {
		first, err := d.dedup.Claim(ctx, in.Provider, id)
		if err != nil {
			// Accept the message rather than lose it when the dedup store is down.
			d.logger.Warn("dedup check failed", "provider", in.Provider, "message_id", id, "error", err)
		} else if !first {
			d.metrics.ObserveDropped("duplicate")
			d.logger.Debug("duplicate delivery dropped", "provider", in.Provider, "message_id", id)
			return nil
		} else {
			claimed = true
		}
	}

	j, body, err := encodeJob(in)
	if err != nil {
		d.release(ctx, in, claimed)
		return err
	}
	dedupID := in.Provider + ":" + id
	if id == "" {
		dedupID = j.ID
	}
	err = d.queue.Send(ctx, outgoing{Body: body, GroupKey: orderingKey(in), DedupID: dedupID})
	if err != nil {
		d.release(ctx, in, claimed)
		return fmt.Errorf("inbound: enqueue: %w", err)
	}
	d.logger.Debug("inbound enqueued",
		"job_id", j.ID,
		"provider", in.Provider,
		"channel", in.Channel,
		"message_id", id,
	)
	return nil
}

// orderingKey groups private messages by phone line, matching the engine's
// session key, and group messages by group.
func orderingKey(in messaging.Inbound) string {
	if in.Channel == messaging.ChannelGroup {
		return in.GroupID
	}
	if key := identity.LineKey(in.From); key != "" {
		return key
	}
	return in.From
}

func (d *Dispatcher) release(ctx context.Context, in messaging.Inbound, claimed bool) {
	if !claimed {
		return
	}
	if err := d.dedup.Release(ctx, in.Provider, in.Message.ID); err != nil {
		d.logger.Warn("dedup release failed", "message_id", in.Message.ID, "error", err)
	}
}
