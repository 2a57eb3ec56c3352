package bootstrap

import (
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/pkg/logging"
)

// EventPipeline carries domain events from the engine and monitor to the
// broker and the back-office notifier.
type EventPipeline struct {
	Publisher events.Publisher
	// Deliverer drains the outbox; nil without a database.
	Deliverer *events.Deliverer
	// Broker is nil when no AMQP URL is configured.
	Broker *events.AMQPPublisher
}

// Close releases the broker connection.
func (p *EventPipeline) Close() error {
	if p == nil || p.Broker == nil {
		return nil
	}
	return p.Broker.Close()
}

// BuildEventPipeline uses the transactional outbox when a database is
// available and delivers straight to the handlers otherwise. A broker dial
// failure is logged and events keep flowing to the remaining handlers.
func BuildEventPipeline(cfg *appconfig.Config, pool *pgxpool.Pool, local events.DeliveryHandler, logger *logging.Logger) *EventPipeline {
	if logger == nil {
		logger = logging.Default()
	}
	out := &EventPipeline{}

	handlers := events.FanOut{}
	if url := strings.TrimSpace(cfg.AMQPURL); url != "" {
		broker, err := events.NewAMQPPublisher(url, cfg.EventsExchange, logger)
		if err != nil {
			logger.Error("amqp broker unavailable; events will not reach the exchange", "error", err)
		} else {
			out.Broker = broker
			handlers = append(handlers, broker)
		}
	}
	if local != nil {
		handlers = append(handlers, local)
	}

	switch {
	case pool != nil:
		store := events.NewOutboxStore(pool)
		out.Publisher = events.NewOutboxPublisher(store)
		out.Deliverer = events.NewDeliverer(store, handlers, logger)
	case len(handlers) > 0:
		out.Publisher = events.NewDirectPublisher(handlers)
	default:
		out.Publisher = events.NewLogPublisher(logger)
	}
	return out
}
