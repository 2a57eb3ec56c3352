package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arteita/fretebot/internal/archive"
	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/internal/extraction"
	"github.com/arteita/fretebot/internal/freight"
	"github.com/arteita/fretebot/internal/identity"
	"github.com/arteita/fretebot/internal/messaging"
	"github.com/arteita/fretebot/internal/observability/metrics"
	"github.com/arteita/fretebot/internal/session"
	"github.com/arteita/fretebot/pkg/logging"
)

var engineTracer = otel.Tracer("fretebot.internal.conversation.engine")

const (
	DefaultIdleTimeout   = 10 * time.Minute
	DefaultOracleTimeout = 60 * time.Second

	// stateClosed labels transitions that end with the session deleted.
	stateClosed = "CLOSED"
)

// Messenger is the slice of the messaging gateway the engine needs.
type Messenger interface {
	SendText(ctx context.Context, to, text string) error
	DownloadMedia(ctx context.Context, ref string) ([]byte, error)
}

// DriverMatcher resolves a sender address to a registered driver.
type DriverMatcher interface {
	Match(ctx context.Context, sender string) (freight.Driver, error)
}

// Extractor reads freight fields from a ticket image or a text message.
type Extractor interface {
	ExtractFreight(ctx context.Context, in extraction.Input) (freight.Draft, error)
}

// Registrar persists a confirmed draft.
type Registrar interface {
	Register(ctx context.Context, reg freight.Registration) (freight.Freight, error)
}

// MediaArchive keeps a copy of ticket media.
type MediaArchive interface {
	ArchiveTicket(ctx context.Context, t archive.Ticket) (string, error)
}

// Engine drives drivers through ticket capture, field completion and
// confirmation. All mutation of one sender's session happens under that
// sender's lock.
type Engine struct {
	store         session.Store
	locker        session.Locker
	messenger     Messenger
	matcher       DriverMatcher
	oracle        Extractor
	registrar     Registrar
	archive       MediaArchive
	publisher     events.Publisher
	logger        *logging.Logger
	metrics       *metrics.Metrics
	idle          time.Duration
	oracleTimeout time.Duration
	now           func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLocker replaces the in-process per-sender lock.
func WithLocker(l session.Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithIdleTimeout sets how long a session may stay inactive.
func WithIdleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.idle = d
		}
	}
}

// WithOracleTimeout bounds every extraction call.
func WithOracleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.oracleTimeout = d
		}
	}
}

func WithArchive(a MediaArchive) Option       { return func(e *Engine) { e.archive = a } }
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.publisher = p } }
func WithLogger(l *logging.Logger) Option     { return func(e *Engine) { e.logger = l } }
func WithMetrics(m *metrics.Metrics) Option   { return func(e *Engine) { e.metrics = m } }
func WithClock(now func() time.Time) Option   { return func(e *Engine) { e.now = now } }

// NewEngine wires the engine to its collaborators.
func NewEngine(store session.Store, messenger Messenger, matcher DriverMatcher, oracle Extractor, registrar Registrar, opts ...Option) *Engine {
	if store == nil {
		panic("conversation: session store required")
	}
	if messenger == nil {
		panic("conversation: messenger required")
	}
	if matcher == nil {
		panic("conversation: driver matcher required")
	}
	if oracle == nil {
		panic("conversation: extractor required")
	}
	if registrar == nil {
		panic("conversation: registrar required")
	}
	e := &Engine{
		store:         store,
		locker:        session.NewKeyedMutex(),
		messenger:     messenger,
		matcher:       matcher,
		oracle:        oracle,
		registrar:     registrar,
		idle:          DefaultIdleTimeout,
		oracleTimeout: DefaultOracleTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	return e
}

// turn is the outcome of one inbound message.
type turn struct {
	reply string
	// closed means the session must be deleted instead of saved.
	closed bool
}

// HandleMessage processes one private message from sender.
func (e *Engine) HandleMessage(ctx context.Context, from string, msg messaging.Message) error {
	key := identity.LineKey(from)
	if key == "" {
		return fmt.Errorf("conversation: sender %q has no digits", from)
	}

	ctx, span := engineTracer.Start(ctx, "conversation.handle_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("fretebot.message.kind", string(msg.Kind)),
		attribute.String("fretebot.message.id", msg.ID),
	)

	now := e.now()
	if purged, err := e.store.Sweep(ctx, now.Add(-e.idle)); err != nil {
		e.logger.Warn("session sweep failed", "error", err)
	} else if purged > 0 {
		e.logger.Info("expired sessions purged", "count", purged)
	}

	unlock, err := e.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("conversation: lock sender: %w", err)
	}
	defer unlock()

	driver, err := e.matcher.Match(ctx, from)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownSender) || errors.Is(err, identity.ErrAmbiguousSender) {
			e.logger.Info("rejected unregistered sender", "sender", key, "reason", err)
			return e.send(ctx, from, msgUnknownSender)
		}
		return fmt.Errorf("conversation: match sender: %w", err)
	}

	sess, err := e.load(ctx, key, now)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = &session.Session{
			State:      session.StateIdle,
			DriverID:   driver.ID,
			DriverName: driver.Name,
		}
		e.logger.Debug("session started", "sender", key, "driver_id", driver.ID)
	}
	sess.LastActivity = now

	prev := sess.State
	span.SetAttributes(attribute.String("fretebot.session.state", string(prev)))

	t := e.step(ctx, key, sess, msg)

	to := string(sess.State)
	if t.closed {
		to = stateClosed
		if err := e.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("conversation: delete session: %w", err)
		}
	} else if err := e.store.Put(ctx, key, sess); err != nil {
		return fmt.Errorf("conversation: save session: %w", err)
	}
	if string(prev) != to {
		e.metrics.ObserveTransition(string(prev), to)
		e.logger.Info("session transition", "sender", key, "from", prev, "to", to)
	}

	if t.reply == "" {
		return nil
	}
	return e.send(ctx, from, t.reply)
}

// load returns the live session for key, or nil when there is none or it
// went idle past the threshold.
func (e *Engine) load(ctx context.Context, key string, now time.Time) (*session.Session, error) {
	sess, err := e.store.Get(ctx, key)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	if sess.Expired(now, e.idle) {
		if err := e.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("conversation: delete expired session: %w", err)
		}
		e.logger.Info("session expired", "sender", key, "state", sess.State)
		return nil, nil
	}
	return sess, nil
}

func (e *Engine) send(ctx context.Context, to, text string) error {
	if err := e.messenger.SendText(ctx, to, text); err != nil {
		return fmt.Errorf("conversation: send reply: %w", err)
	}
	return nil
}

func (e *Engine) step(ctx context.Context, key string, sess *session.Session, msg messaging.Message) turn {
	switch sess.State {
	case session.StateIdle:
		return e.onIdle(ctx, key, sess, msg)
	case session.StateAwaitingTicket:
		return e.onTicket(ctx, key, sess, msg)
	case session.StateAwaitingConfirmation:
		return e.onConfirmation(ctx, key, sess, msg)
	case session.StateAwaitingMissingFields:
		return e.onMissingFields(ctx, key, sess, msg)
	default:
		e.logger.Warn("unknown session state, restarting", "sender", key, "state", sess.State)
		sess.Reset()
		return e.onIdle(ctx, key, sess, msg)
	}
}

// extract calls the oracle under the configured timeout.
func (e *Engine) extract(ctx context.Context, in extraction.Input) (freight.Draft, error) {
	ctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()
	return e.oracle.ExtractFreight(ctx, in)
}
