package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	entries []OutboxEntry
	err     error
}

func (h *recordingHandler) Handle(_ context.Context, entry OutboxEntry) error {
	h.entries = append(h.entries, entry)
	return h.err
}

func TestFanOutRunsEveryHandler(t *testing.T) {
	failing := &recordingHandler{err: errors.New("broker down")}
	ok := &recordingHandler{}

	err := FanOut{failing, nil, ok}.Handle(context.Background(), OutboxEntry{Type: TypeFreightRegistered})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, failing.entries, 1)
	assert.Len(t, ok.entries, 1)
}

func TestFanOutEmptySucceeds(t *testing.T) {
	assert.NoError(t, FanOut(nil).Handle(context.Background(), OutboxEntry{}))
}

func TestDirectPublisherBuildsDecodableEntry(t *testing.T) {
	h := &recordingHandler{}
	p := NewDirectPublisher(h)

	err := p.Publish(context.Background(), "opportunity:op-3", OpportunityDetectedV1{OpportunityID: "op-3", Priority: "LOW"}, WithCorrelationID("wamid.X"))
	require.NoError(t, err)
	require.Len(t, h.entries, 1)

	entry := h.entries[0]
	assert.Equal(t, TypeOpportunityDetected, entry.Type)
	assert.Equal(t, "opportunity:op-3", entry.Aggregate)

	env, err := entry.Envelope()
	require.NoError(t, err)
	assert.Equal(t, entry.ID, env.EventID)
	assert.Equal(t, "wamid.X", env.CorrelationID)
}

func TestDirectPublisherReturnsHandlerError(t *testing.T) {
	p := NewDirectPublisher(&recordingHandler{err: errors.New("smtp down")})
	err := p.Publish(context.Background(), "freight:f-1", FreightRegisteredV1{FreightID: "f-1"})
	assert.EqualError(t, err, "smtp down")
}
