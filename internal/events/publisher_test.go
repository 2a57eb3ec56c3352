package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/arteita/fretebot/pkg/logging"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedPublish struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	published []recordedPublish
	err       error
	closed    int
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, recordedPublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

func TestAMQPPublisherPublish(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQPPublisher(func() (amqpChannel, error) { return ch, nil }, "fretebot.events", logging.Discard())

	err := p.Publish(context.Background(), "opportunity:op-7", OpportunityDetectedV1{OpportunityID: "op-7", Priority: "HIGH"}, WithCorrelationID("3EB0AA"))
	require.NoError(t, err)
	require.Len(t, ch.published, 1)
	assert.Equal(t, 1, ch.closed)

	got := ch.published[0]
	assert.Equal(t, "fretebot.events", got.exchange)
	assert.Equal(t, TypeOpportunityDetected, got.key)
	assert.Equal(t, "3EB0AA", got.msg.CorrelationId)
	assert.Equal(t, amqp091.Persistent, got.msg.DeliveryMode)

	var wire WireMessage
	require.NoError(t, json.Unmarshal(got.msg.Body, &wire))
	assert.Equal(t, TypeOpportunityDetected, wire.Meta.Type)
	assert.Equal(t, DefaultSource, wire.Meta.Source)
	assert.Equal(t, got.msg.MessageId, wire.Meta.ID)

	var data OpportunityDetectedV1
	require.NoError(t, json.Unmarshal(wire.Data, &data))
	assert.Equal(t, "op-7", data.OpportunityID)
}

func TestAMQPPublisherHandleOutboxEntry(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQPPublisher(func() (amqpChannel, error) { return ch, nil }, "x", logging.Discard())

	env, err := NewEnvelope("freight:f-2", FreightRegisteredV1{FreightID: "f-2"})
	require.NoError(t, err)
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	require.NoError(t, p.Handle(context.Background(), OutboxEntry{ID: env.EventID, Payload: payload}))
	require.Len(t, ch.published, 1)
	assert.Equal(t, env.EventID.String(), ch.published[0].msg.CorrelationId)

	assert.Error(t, p.Handle(context.Background(), OutboxEntry{Payload: []byte("{")}))
}

func TestAMQPPublisherErrors(t *testing.T) {
	p := newAMQPPublisher(func() (amqpChannel, error) { return nil, errors.New("connection closed") }, "x", logging.Discard())
	assert.Error(t, p.Publish(context.Background(), "freight:1", FreightRegisteredV1{}))

	ch := &fakeChannel{err: errors.New("nack")}
	p = newAMQPPublisher(func() (amqpChannel, error) { return ch, nil }, "x", logging.Discard())
	assert.Error(t, p.Publish(context.Background(), "freight:1", FreightRegisteredV1{}))
	assert.Equal(t, 1, ch.closed)
	assert.NoError(t, p.Close())
}

type sliceSink struct {
	envs []Envelope
	err  error
}

func (s *sliceSink) Insert(ctx context.Context, env Envelope) error {
	if s.err != nil {
		return s.err
	}
	s.envs = append(s.envs, env)
	return nil
}

func TestOutboxPublisher(t *testing.T) {
	sink := &sliceSink{}
	p := &OutboxPublisher{store: sink}
	require.NoError(t, p.Publish(context.Background(), "freight:f-3", FreightRegisteredV1{FreightID: "f-3"}))
	require.Len(t, sink.envs, 1)
	assert.Equal(t, "freight:f-3", sink.envs[0].Aggregate)

	sink.err = errors.New("db down")
	assert.Error(t, p.Publish(context.Background(), "freight:f-3", FreightRegisteredV1{}))
	assert.Error(t, p.Publish(context.Background(), "", FreightRegisteredV1{}))
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(logging.Discard())
	assert.NoError(t, p.Publish(context.Background(), "opportunity:1", OpportunityDetectedV1{}))
	assert.Error(t, p.Publish(context.Background(), "opportunity:1", nil))
}
