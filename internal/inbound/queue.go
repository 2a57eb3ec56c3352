package inbound

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/arteita/fretebot/internal/messaging"
)

// Queue is the work queue between the webhook and the workers.
type Queue interface {
	Send(ctx context.Context, msg outgoing) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// outgoing is one job about to be enqueued.
type outgoing struct {
	Body string
	// GroupKey orders jobs that must not run concurrently (the sender key).
	GroupKey string
	// DedupID lets FIFO backends drop redeliveries on their own.
	DedupID string
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// job is the queued representation of an inbound message.
type job struct {
	ID      string            `json:"id"`
	Inbound messaging.Inbound `json:"inbound"`
}

func encodeJob(in messaging.Inbound) (job, string, error) {
	j := job{ID: uuid.NewString(), Inbound: in}
	body, err := json.Marshal(j)
	if err != nil {
		return job{}, "", fmt.Errorf("inbound: encode job: %w", err)
	}
	return j, string(body), nil
}

func decodeJob(body string) (job, error) {
	var j job
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return job{}, fmt.Errorf("inbound: decode job: %w", err)
	}
	return j, nil
}
