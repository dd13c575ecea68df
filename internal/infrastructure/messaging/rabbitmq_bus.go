package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/event"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPChannel is the subset of *amqp.Channel used by the bus
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQConfig configures the RabbitMQ event bus
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Queue    string
	// Retry spaces redispatch of a delivery whose handler failed. The
	// delivery stays unacked until the handler succeeds.
	Retry RetryPolicy
}

// DeadLetterExchange receives deliveries the bus rejects
func (c RabbitMQConfig) DeadLetterExchange() string {
	return c.Exchange + ".dlx"
}

// DeadLetterQueue holds rejected deliveries for operators
func (c RabbitMQConfig) DeadLetterQueue() string {
	return c.Queue + ".dead"
}

// RabbitMQEventBus routes events through a durable topic exchange into a
// single durable queue. The queue has a single active consumer and prefetch
// 1, so deliveries are handled one at a time in publish order even with
// several replicas attached. Undecodable deliveries are dead-lettered.
type RabbitMQEventBus struct {
	conn       *amqp.Connection
	ch         AMQPChannel
	cfg        RabbitMQConfig
	registry   *event.HandlerRegistry
	serializer *event.EventSerializer
	logger     *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// DialRabbitMQ connects to the broker and returns a bus using a fresh channel
func DialRabbitMQ(cfg RabbitMQConfig, serializer *event.EventSerializer, logger *zap.Logger) (*RabbitMQEventBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	bus, err := NewRabbitMQEventBus(ch, cfg, serializer, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	bus.conn = conn
	return bus, nil
}

// NewRabbitMQEventBus declares the exchanges on ch and returns the bus
func NewRabbitMQEventBus(ch AMQPChannel, cfg RabbitMQConfig, serializer *event.EventSerializer, logger *zap.Logger) (*RabbitMQEventBus, error) {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.ExchangeDeclare(cfg.DeadLetterExchange(), "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.DeadLetterExchange(), err)
	}
	cfg.Retry = cfg.Retry.withDefaults()
	return &RabbitMQEventBus{
		ch:         ch,
		cfg:        cfg,
		registry:   event.NewHandlerRegistry(),
		serializer: serializer,
		logger:     logger.With(zap.String("component", "rabbitmq_event_bus")),
	}, nil
}

// Publish sends each event as a persistent message routed by event type
func (b *RabbitMQEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, e := range events {
		payload, err := b.serializer.Serialize(e)
		if err != nil {
			return err
		}
		headers := amqp.Table{}
		for k, v := range eventHeaders(ctx, e) {
			headers[k] = v
		}
		msg := amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    e.EventID().String(),
			Type:         e.EventType(),
			Timestamp:    e.OccurredAt(),
			Headers:      headers,
			Body:         payload,
		}
		if err := b.ch.PublishWithContext(ctx, b.cfg.Exchange, e.EventType(), false, false, msg); err != nil {
			return fmt.Errorf("failed to publish %s to rabbitmq: %w", e.EventType(), err)
		}
	}
	return nil
}

// Subscribe registers a handler; bindings are created on Start
func (b *RabbitMQEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	b.registry.Register(handler, eventTypes...)
}

// Start declares the queue, binds every subscribed event type and consumes
func (b *RabbitMQEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	dead, err := b.ch.QueueDeclare(b.cfg.DeadLetterQueue(), true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", b.cfg.DeadLetterQueue(), err)
	}
	if err := b.ch.QueueBind(dead.Name, "", b.cfg.DeadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("failed to bind %s: %w", dead.Name, err)
	}

	q, err := b.ch.QueueDeclare(b.cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":   b.cfg.DeadLetterExchange(),
		"x-single-active-consumer": true,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", b.cfg.Queue, err)
	}
	for _, eventType := range b.registry.EventTypes() {
		if err := b.ch.QueueBind(q.Name, eventType, b.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", eventType, err)
		}
	}
	if err := b.ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	deliveries, err := b.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", q.Name, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.started = true
	go b.consume(consumeCtx, deliveries)

	b.logger.Info("RabbitMQ event bus started",
		zap.String("queue", q.Name),
		zap.Strings("event_types", b.registry.EventTypes()))
	return nil
}

// Stop ends consumption and closes the channel. A delivery still being
// retried is left unacked and the broker requeues it.
func (b *RabbitMQEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	started := b.started
	b.started = false
	b.mu.Unlock()

	var errs []error
	if started {
		b.cancel()
		select {
		case <-b.done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	errs = append(errs, b.ch.Close())
	if b.conn != nil {
		errs = append(errs, b.conn.Close())
	}
	b.logger.Info("RabbitMQ event bus stopped")
	return errors.Join(errs...)
}

func (b *RabbitMQEventBus) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			b.handleDelivery(ctx, d)
		}
	}
}

func (b *RabbitMQEventBus) handleDelivery(ctx context.Context, d amqp.Delivery) {
	domainEvent, err := b.serializer.Deserialize(d.Type, d.Body)
	if err != nil {
		b.logger.Error("Dead-lettering undecodable rabbitmq message",
			zap.String("event_type", d.Type),
			zap.String("message_id", d.MessageId),
			zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	msgCtx := contextFromHeaders(ctx, stringHeaders(d.Headers))
	if !dispatchUntilHandled(ctx, msgCtx, b.registry, domainEvent, b.cfg.Retry, b.logger) {
		// Stopping; hand the delivery back in place
		_ = d.Nack(false, true)
		return
	}
	if err := d.Ack(false); err != nil {
		b.logger.Error("Failed to ack rabbitmq message", zap.String("event_id", d.MessageId), zap.Error(err))
	}
}

func stringHeaders(table amqp.Table) map[string]string {
	out := make(map[string]string, len(table))
	for k, v := range table {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

var _ shared.EventBus = (*RabbitMQEventBus)(nil)
