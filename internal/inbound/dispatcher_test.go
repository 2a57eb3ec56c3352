package inbound

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arteita/fretebot/internal/messaging"
	"github.com/arteita/fretebot/pkg/logging"
)

type recordingQueue struct {
	sent []outgoing
	err  error
}

func (q *recordingQueue) Send(ctx context.Context, msg outgoing) error {
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

func (q *recordingQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	return nil, nil
}

func (q *recordingQueue) Delete(ctx context.Context, receiptHandle string) error { return nil }

func privateInbound(id string) messaging.Inbound {
	return messaging.Inbound{
		Provider: "evolution",
		Channel:  messaging.ChannelPrivate,
		From:     "553191570107",
		Message:  messaging.Message{ID: id, Kind: messaging.KindText, Text: "oi"},
	}
}

func TestDispatcherDropsDuplicates(t *testing.T) {
	q := &recordingQueue{}
	d := NewDispatcher(q, logging.Discard(), WithDeduper(NewMemoryDeduper(0)))
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, privateInbound("m1")))
	require.NoError(t, d.Dispatch(ctx, privateInbound("m1")))
	require.NoError(t, d.Dispatch(ctx, privateInbound("m2")))

	require.Len(t, q.sent, 2)
	assert.Equal(t, "5531991570107", q.sent[0].GroupKey, "ordered by phone line")
	assert.Equal(t, "evolution:m1", q.sent[0].DedupID)

	j, err := decodeJob(q.sent[1].Body)
	require.NoError(t, err)
	assert.Equal(t, "m2", j.Inbound.Message.ID)
	assert.NotEmpty(t, j.ID)
}

func TestDispatcherGroupKeyIsGroupID(t *testing.T) {
	q := &recordingQueue{}
	d := NewDispatcher(q, logging.Discard())

	in := messaging.Inbound{
		Provider: "evolution",
		Channel:  messaging.ChannelGroup,
		From:     "553499990000",
		GroupID:  "120363025746331234@g.us",
		Message:  messaging.Message{Kind: messaging.KindText, Text: "soja"},
	}
	require.NoError(t, d.Dispatch(context.Background(), in))
	require.Len(t, q.sent, 1)
	assert.Equal(t, "120363025746331234@g.us", q.sent[0].GroupKey)
	assert.NotEqual(t, "evolution:", q.sent[0].DedupID, "messages without id get a unique dedup id")
}

func TestDispatcherReleasesClaimWhenEnqueueFails(t *testing.T) {
	q := &recordingQueue{err: errors.New("queue down")}
	dedup := NewMemoryDeduper(0)
	d := NewDispatcher(q, logging.Discard(), WithDeduper(dedup))
	ctx := context.Background()

	require.Error(t, d.Dispatch(ctx, privateInbound("m1")))

	q.err = nil
	require.NoError(t, d.Dispatch(ctx, privateInbound("m1")))
	assert.Len(t, q.sent, 1, "a failed enqueue must not mark the message as seen")
}

type brokenDeduper struct{}

func (brokenDeduper) Claim(ctx context.Context, provider, id string) (bool, error) {
	return false, errors.New("redis down")
}
func (brokenDeduper) Release(ctx context.Context, provider, id string) error { return nil }

func TestDispatcherAcceptsWhenDedupFails(t *testing.T) {
	q := &recordingQueue{}
	d := NewDispatcher(q, logging.Discard(), WithDeduper(brokenDeduper{}))

	require.NoError(t, d.Dispatch(context.Background(), privateInbound("m1")))
	assert.Len(t, q.sent, 1)
}
