package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/inventory/internal/domain/order"
	"github.com/erp/inventory/internal/infrastructure/event"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type binding struct {
	queue, key, exchange string
}

// fakeChannel records topology calls and hands out a controllable delivery stream
type fakeChannel struct {
	mu         sync.Mutex
	exchanges  []string
	queues     []string
	queueArgs  map[string]amqp.Table
	bindings   []binding
	prefetch   int
	published  []amqp.Publishing
	routing    []string
	deliveries chan amqp.Delivery
	closeOnce  sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16), queueArgs: map[string]amqp.Table{}}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	c.exchanges = append(c.exchanges, name+":"+kind)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.queues = append(c.queues, name)
	c.queueArgs[name] = args
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.bindings = append(c.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, msg)
	c.routing = append(c.routing, key)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.deliveries) })
	return nil
}

// deliver turns a published message into a delivery
func (c *fakeChannel) deliver(msg amqp.Publishing, ack *fakeAcknowledger, redelivered bool) {
	c.deliveries <- amqp.Delivery{
		Acknowledger: ack,
		Type:         msg.Type,
		MessageId:    msg.MessageId,
		Headers:      msg.Headers,
		Body:         msg.Body,
		Redelivered:  redelivered,
	}
}

type ackOutcome struct {
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	outcomes chan ackOutcome
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{outcomes: make(chan ackOutcome, 16)}
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.outcomes <- ackOutcome{acked: true}
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.outcomes <- ackOutcome{requeue: requeue}
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

func (a *fakeAcknowledger) next(t *testing.T) ackOutcome {
	t.Helper()
	select {
	case o := <-a.outcomes:
		return o
	case <-time.After(time.Second):
		t.Fatal("delivery was not settled")
		return ackOutcome{}
	}
}

var testRabbitConfig = RabbitMQConfig{Exchange: "inventory.events", Queue: "inventory.saga"}

func TestRabbitMQEventBus_Topology(t *testing.T) {
	ch := newFakeChannel()
	bus, err := NewRabbitMQEventBus(ch, testRabbitConfig, event.NewEventSerializer(), zap.NewNop())
	require.NoError(t, err)
	bus.Subscribe(&recordingHandler{types: []string{order.EventTypeOrderShipped, order.EventTypeOrderConfirmed}})

	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop(context.Background())

	assert.Equal(t, []string{"inventory.events:topic", "inventory.events.dlx:fanout"}, ch.exchanges)
	assert.Equal(t, []string{"inventory.saga.dead", "inventory.saga"}, ch.queues)
	assert.Equal(t, "inventory.events.dlx", ch.queueArgs["inventory.saga"]["x-dead-letter-exchange"])
	assert.Equal(t, true, ch.queueArgs["inventory.saga"]["x-single-active-consumer"])
	assert.Equal(t, []binding{
		{queue: "inventory.saga.dead", key: "", exchange: "inventory.events.dlx"},
		{queue: "inventory.saga", key: order.EventTypeOrderConfirmed, exchange: "inventory.events"},
		{queue: "inventory.saga", key: order.EventTypeOrderShipped, exchange: "inventory.events"},
	}, ch.bindings)
	assert.Equal(t, 1, ch.prefetch)
}

func TestRabbitMQEventBus_PublishAndConsume(t *testing.T) {
	ch := newFakeChannel()
	bus, err := NewRabbitMQEventBus(ch, testRabbitConfig, event.NewEventSerializer(), zap.NewNop())
	require.NoError(t, err)
	handler := &recordingHandler{types: []string{order.EventTypeOrderConfirmed}}
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))

	confirmed := confirmedEvent(uuid.New())
	require.NoError(t, bus.Publish(context.Background(), confirmed))
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, []string{order.EventTypeOrderConfirmed}, ch.routing)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, confirmed.EventID().String(), msg.MessageId)
	assert.Equal(t, confirmed.AggregateID().String(), msg.Headers[HeaderAggregateID])

	ack := newFakeAcknowledger()
	ch.deliver(msg, ack, false)
	assert.Equal(t, ackOutcome{acked: true}, ack.next(t))
	assert.Equal(t, []uuid.UUID{confirmed.EventID()}, handler.handled())

	require.NoError(t, bus.Stop(context.Background()))
}

func TestRabbitMQEventBus_RetriesFailingHandlerUntilHandled(t *testing.T) {
	ch := newFakeChannel()
	cfg := testRabbitConfig
	cfg.Retry = RetryPolicy{Initial: time.Millisecond, Max: 5 * time.Millisecond}
	bus, err := NewRabbitMQEventBus(ch, cfg, event.NewEventSerializer(), zap.NewNop())
	require.NoError(t, err)
	handler := &recordingHandler{types: []string{order.EventTypeOrderConfirmed}, failures: 3}
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop(context.Background())

	confirmed := confirmedEvent(uuid.New())
	require.NoError(t, bus.Publish(context.Background(), confirmed))

	ack := newFakeAcknowledger()
	ch.deliver(ch.published[0], ack, false)
	assert.Equal(t, ackOutcome{acked: true}, ack.next(t))
	assert.Equal(t, 4, handler.callCount())
	assert.Equal(t, []uuid.UUID{confirmed.EventID()}, handler.handled())
}

func TestRabbitMQEventBus_StopDuringRetryRequeues(t *testing.T) {
	ch := newFakeChannel()
	cfg := testRabbitConfig
	cfg.Retry = RetryPolicy{Initial: time.Hour, Max: time.Hour}
	bus, err := NewRabbitMQEventBus(ch, cfg, event.NewEventSerializer(), zap.NewNop())
	require.NoError(t, err)
	handler := &recordingHandler{types: []string{order.EventTypeOrderConfirmed}, failures: 1}
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(context.Background(), confirmedEvent(uuid.New())))
	ack := newFakeAcknowledger()
	ch.deliver(ch.published[0], ack, false)
	assert.Eventually(t, func() bool { return handler.callCount() == 1 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(stopCtx))
	assert.Equal(t, ackOutcome{requeue: true}, ack.next(t))
	assert.Empty(t, handler.handled())
}

func TestRabbitMQEventBus_UndecodableIsRejected(t *testing.T) {
	ch := newFakeChannel()
	bus, err := NewRabbitMQEventBus(ch, testRabbitConfig, event.NewEventSerializer(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop(context.Background())

	ack := newFakeAcknowledger()
	ch.deliver(amqp.Publishing{Type: "SomethingElse", Body: []byte(`{}`)}, ack, false)
	assert.Equal(t, ackOutcome{requeue: false}, ack.next(t))
}

type failingExchangeChannel struct{ *fakeChannel }

func (failingExchangeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp.Table) error {
	return errors.New("access refused")
}

func TestNewRabbitMQEventBus_ExchangeError(t *testing.T) {
	_, err := NewRabbitMQEventBus(failingExchangeChannel{newFakeChannel()}, testRabbitConfig, event.NewEventSerializer(), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory.events")
}
