package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAcker struct {
	lock    sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *recordingAcker) Ack(tag uint64, _ bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(t *testing.T, acker amqp.Acknowledger, tag uint64, in any) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, Body: body}
}

func TestConsumer_AcksAfterHandler(t *testing.T) {
	acker := &recordingAcker{}
	var got []ReservationIntent
	c := NewConsumer(ConsumerConfig{}, func(_ context.Context, in ReservationIntent) error {
		got = append(got, in)
		return nil
	}, zap.NewNop())

	c.handle(context.Background(), delivery(t, acker, 7, ReservationIntent{BookingID: "b1", ClassID: "c1"}))

	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].BookingID)
	assert.Equal(t, []uint64{7}, acker.acked)
	assert.Empty(t, acker.nacked)
}

func TestConsumer_AcksEvenWhenHandlerFails(t *testing.T) {
	acker := &recordingAcker{}
	c := NewConsumer(ConsumerConfig{}, func(context.Context, ReservationIntent) error {
		return errors.New("ledger exploded")
	}, zap.NewNop())

	c.handle(context.Background(), delivery(t, acker, 3, ReservationIntent{BookingID: "b1", ClassID: "c1"}))

	assert.Equal(t, []uint64{3}, acker.acked)
}

func TestConsumer_AcksAfterHandlerPanic(t *testing.T) {
	acker := &recordingAcker{}
	c := NewConsumer(ConsumerConfig{}, func(context.Context, ReservationIntent) error {
		panic("boom")
	}, zap.NewNop())

	c.handle(context.Background(), delivery(t, acker, 4, ReservationIntent{BookingID: "b1", ClassID: "c1"}))

	assert.Equal(t, []uint64{4}, acker.acked)
}

func TestConsumer_RejectsMalformedWithoutRequeue(t *testing.T) {
	acker := &recordingAcker{}
	called := false
	c := NewConsumer(ConsumerConfig{}, func(context.Context, ReservationIntent) error {
		called = true
		return nil
	}, zap.NewNop())

	c.handle(context.Background(), amqp.Delivery{Acknowledger: acker, DeliveryTag: 9, Body: []byte("{not json")})
	c.handle(context.Background(), delivery(t, acker, 10, map[string]string{"booking_id": "b1"}))

	assert.False(t, called)
	assert.Empty(t, acker.acked)
	assert.Equal(t, []uint64{9, 10}, acker.nacked)
	assert.Equal(t, []bool{false, false}, acker.requeue)
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := NewConsumer(ConsumerConfig{Workers: 50, Prefetch: 5}, nil, zap.NewNop())
	assert.Equal(t, DefaultQueueName, c.cfg.Queue)
	assert.Equal(t, 5, c.cfg.Prefetch)
	assert.Equal(t, 5, c.cfg.Workers)

	c = NewConsumer(ConsumerConfig{}, nil, zap.NewNop())
	assert.Equal(t, 10, c.cfg.Prefetch)
	assert.Equal(t, 10, c.cfg.Workers)
}

func TestHeaderCarrier(t *testing.T) {
	h := headerCarrier(amqp.Table{"traceparent": []byte("00-abc"), "n": 3})
	assert.Equal(t, "00-abc", h.Get("traceparent"))
	assert.Equal(t, "3", h.Get("n"))
	assert.Equal(t, "", h.Get("missing"))

	h.Set("tracestate", "k=v")
	assert.Equal(t, "k=v", h.Get("tracestate"))
	assert.ElementsMatch(t, []string{"traceparent", "n", "tracestate"}, h.Keys())
}
