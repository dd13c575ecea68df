package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/event"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaWriter is the subset of *kafka.Writer used by the bus
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReader is the subset of *kafka.Reader used by the bus
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka event bus
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// Retry spaces redelivery of a message whose handler failed. The offset
	// stays uncommitted until the handler succeeds.
	Retry RetryPolicy
	// FetchBackoff is the pause after a failed fetch
	FetchBackoff time.Duration
}

// KafkaEventBus publishes events keyed by aggregate id so one partition holds
// the whole history of an aggregate, and dispatches consumed events to the
// local handler registry.
type KafkaEventBus struct {
	writer     KafkaWriter
	reader     KafkaReader
	registry   *event.HandlerRegistry
	serializer *event.EventSerializer
	logger     *zap.Logger
	retry      RetryPolicy
	backoff    time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewKafkaEventBus creates a bus backed by kafka-go
func NewKafkaEventBus(cfg KafkaConfig, serializer *event.EventSerializer, logger *zap.Logger) *KafkaEventBus {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return NewKafkaEventBusWithClients(writer, reader, cfg, serializer, logger)
}

// NewKafkaEventBusWithClients wires explicit writer and reader, used in tests
func NewKafkaEventBusWithClients(
	writer KafkaWriter,
	reader KafkaReader,
	cfg KafkaConfig,
	serializer *event.EventSerializer,
	logger *zap.Logger,
) *KafkaEventBus {
	backoff := cfg.FetchBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &KafkaEventBus{
		writer:     writer,
		reader:     reader,
		registry:   event.NewHandlerRegistry(),
		serializer: serializer,
		logger:     logger.With(zap.String("component", "kafka_event_bus")),
		retry:      cfg.Retry.withDefaults(),
		backoff:    backoff,
	}
}

// Publish writes all events in one batch; the writer preserves order per key
func (b *KafkaEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		payload, err := b.serializer.Serialize(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.AggregateID().String()),
			Value:   payload,
			Headers: toKafkaHeaders(eventHeaders(ctx, e)),
			Time:    e.OccurredAt(),
		})
	}
	if err := b.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d events to kafka: %w", len(msgs), err)
	}
	return nil
}

// Subscribe registers a handler for consumed events
func (b *KafkaEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	b.registry.Register(handler, eventTypes...)
}

// Start begins consuming in the background
func (b *KafkaEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if b.reader == nil {
		return errors.New("kafka event bus has no reader")
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.started = true

	go b.consume(consumeCtx)
	b.logger.Info("Kafka event bus started", zap.Strings("event_types", b.registry.EventTypes()))
	return nil
}

// Stop cancels the consumer and closes the clients
func (b *KafkaEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	started := b.started
	b.started = false
	b.mu.Unlock()

	if started {
		b.cancel()
		select {
		case <-b.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var errs []error
	if b.reader != nil {
		errs = append(errs, b.reader.Close())
	}
	errs = append(errs, b.writer.Close())
	b.logger.Info("Kafka event bus stopped")
	return errors.Join(errs...)
}

func (b *KafkaEventBus) consume(ctx context.Context) {
	defer close(b.done)
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("Failed to fetch kafka message", zap.Error(err))
			if !sleepCtx(ctx, b.backoff) {
				return
			}
			continue
		}

		if !b.handleMessage(ctx, msg) {
			// Stopped before the handler succeeded; the uncommitted offset is
			// redelivered to the next consumer of the partition
			return
		}
		if err := b.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			b.logger.Error("Failed to commit kafka offset",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

// handleMessage returns false only when ctx ended before the message was settled
func (b *KafkaEventBus) handleMessage(ctx context.Context, msg kafka.Message) bool {
	headers := fromKafkaHeaders(msg.Headers)
	eventType := headers[HeaderEventType]

	domainEvent, err := b.serializer.Deserialize(eventType, msg.Value)
	if err != nil {
		b.logger.Error("Dropping undecodable kafka message",
			zap.String("event_type", eventType),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return true
	}

	msgCtx := contextFromHeaders(ctx, headers)
	return dispatchUntilHandled(ctx, msgCtx, b.registry, domainEvent, b.retry, b.logger)
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromKafkaHeaders(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var _ shared.EventBus = (*KafkaEventBus)(nil)
