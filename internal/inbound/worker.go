package inbound

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arteita/fretebot/internal/messaging"
	"github.com/arteita/fretebot/pkg/logging"
)

var workerTracer = otel.Tracer("fretebot.internal.inbound.worker")

// ConversationHandler processes one private message.
type ConversationHandler interface {
	HandleMessage(ctx context.Context, from string, msg messaging.Message) error
}

// GroupProcessor processes one group broadcast.
type GroupProcessor interface {
	Process(ctx context.Context, groupID, sender, text string) error
}

// ReadMarker acknowledges a delivered message with the backend.
type ReadMarker interface {
	MarkRead(ctx context.Context, messageID string) error
}

const (
	defaultWorkerCount    = 2
	defaultWaitSeconds    = 2
	defaultBatchSize      = 5
	maxWaitSeconds        = 20
	maxReceiveBatchSize   = 10
	deleteTimeout         = 5 * time.Second
	defaultJobTimeout     = 2 * time.Minute
	maxReceiveBackoffTime = 5 * time.Second
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
	readMarker       ReadMarker
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobTimeout bounds the processing of a single job.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

// WithReadMarker acknowledges private messages before they are processed.
func WithReadMarker(m ReadMarker) WorkerOption {
	return func(cfg *workerConfig) { cfg.readMarker = m }
}

// Worker consumes inbound jobs and routes them by channel: private messages
// to the conversation engine, group broadcasts to the opportunity monitor.
type Worker struct {
	queue         Queue
	conversations ConversationHandler
	groups        GroupProcessor
	logger        *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

// NewWorker builds a worker pool. groups may be nil when no broadcast group
// is monitored.
func NewWorker(queue Queue, conversations ConversationHandler, groups GroupProcessor, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("inbound: queue cannot be nil")
	}
	if conversations == nil {
		panic("inbound: conversation handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		jobTimeout:       defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		queue:         queue,
		conversations: conversations,
		groups:        groups,
		logger:        logger,
		cfg:           cfg,
	}
}

// Start launches the consumer goroutines. They exit when ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("inbound worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("inbound worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive inbound jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxReceiveBackoffTime {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes one job and always deletes it afterwards: a
// redelivery could repeat replies the driver already received.
func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	defer w.deleteMessage(context.Background(), msg.ReceiptHandle)

	j, err := decodeJob(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode inbound job", "error", err, "msg_id", msg.ID)
		return
	}
	in := j.Inbound

	ctx, cancel := context.WithTimeout(ctx, w.cfg.jobTimeout)
	defer cancel()
	ctx, span := workerTracer.Start(ctx, "inbound.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("fretebot.provider", in.Provider),
		attribute.String("fretebot.channel", string(in.Channel)),
		attribute.String("fretebot.message.id", in.Message.ID),
	)

	switch in.Channel {
	case messaging.ChannelGroup:
		if w.groups == nil {
			w.logger.Debug("group message ignored: monitor disabled", "group_id", in.GroupID)
			return
		}
		err = w.groups.Process(ctx, in.GroupID, in.From, in.Message.Text)
	default:
		if w.cfg.readMarker != nil && in.Message.ID != "" {
			if mErr := w.cfg.readMarker.MarkRead(ctx, in.Message.ID); mErr != nil {
				w.logger.Debug("mark read failed", "message_id", in.Message.ID, "error", mErr)
			}
		}
		err = w.conversations.HandleMessage(ctx, in.From, in.Message)
	}
	if err != nil {
		span.RecordError(err)
		w.logger.Error("inbound job failed",
			"job_id", j.ID,
			"channel", in.Channel,
			"message_id", in.Message.ID,
			"error", err,
		)
		return
	}
	w.logger.Debug("inbound job processed", "job_id", j.ID, "channel", in.Channel)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound job", "error", err)
	}
}
