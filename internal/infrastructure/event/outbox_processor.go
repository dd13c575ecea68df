package event

import (
	"context"
	"sync"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration

	// ClaimLease is how long an entry may stay PROCESSING before another
	// batch hands it back for relay
	ClaimLease time.Duration

	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     time.Second,
		ClaimLease:       5 * time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxArchiver keeps a copy of relayed entries before cleanup deletes them
type OutboxArchiver interface {
	Archive(ctx context.Context, entries []*shared.OutboxEntry) error
}

// OutboxProcessor relays outbox entries to the event bus in the background.
// While an entry of an aggregate awaits retry, later entries of that
// aggregate stay pending.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.EventPublisher
	serializer *EventSerializer
	archiver   OutboxArchiver
	metrics    *telemetry.InventoryMetrics
	config     OutboxProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OutboxProcessorOption configures an OutboxProcessor
type OutboxProcessorOption func(*OutboxProcessor)

// WithArchiver archives relayed entries before they are deleted
func WithArchiver(archiver OutboxArchiver) OutboxProcessorOption {
	return func(p *OutboxProcessor) {
		p.archiver = archiver
	}
}

// WithOutboxMetrics counts relay outcomes
func WithOutboxMetrics(metrics *telemetry.InventoryMetrics) OutboxProcessorOption {
	return func(p *OutboxProcessor) {
		p.metrics = metrics
	}
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
	opts ...OutboxProcessorOption,
) *OutboxProcessor {
	defaults := DefaultOutboxProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.ClaimLease <= 0 {
		config.ClaimLease = defaults.ClaimLease
	}
	if config.CleanupRetention <= 0 {
		config.CleanupRetention = defaults.CleanupRetention
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	p := &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		config:     config,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start starts the background relay and cleanup loops
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(ctx, p.config.PollInterval, p.ProcessBatch)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.loop(ctx, p.config.CleanupInterval, func(ctx context.Context) { p.Cleanup(ctx) })
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Bool("archive", p.archiver != nil),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// ProcessBatch releases stale claims, then relays due retries first and
// pending entries after them
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) {
	p.releaseStaleClaims(ctx)

	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find retryable entries", zap.Error(err))
		return
	}
	if len(retryable) > 0 {
		p.processEntries(ctx, retryable)
	}

	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find pending entries", zap.Error(err))
		return
	}
	if len(pending) > 0 {
		p.processEntries(ctx, pending)
	}
}

// processEntries claims and relays entries in order. Once an entry of an
// aggregate fails, the aggregate's remaining claimed entries are returned to
// pending untouched.
func (p *OutboxProcessor) processEntries(ctx context.Context, entries []*shared.OutboxEntry) {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to mark entries as processing", zap.Error(err))
		return
	}

	blocked := make(map[uuid.UUID]bool)
	for _, entry := range claimed {
		if blocked[entry.AggregateID] || ctx.Err() != nil {
			p.unclaim(ctx, entry)
			continue
		}
		if !p.processEntry(ctx, entry) {
			blocked[entry.AggregateID] = true
		}
	}
}

// processEntry relays one entry and reports whether it was sent
func (p *OutboxProcessor) processEntry(ctx context.Context, entry *shared.OutboxEntry) bool {
	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.publisher.Publish(ctx, event)
	}
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; the attempt does not count against the entry
			p.unclaim(ctx, entry)
			return false
		}
		p.fail(ctx, entry, err)
		return false
	}

	entry.MarkSent()
	if err := p.repo.Update(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.Error("failed to mark entry as sent",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
		return true
	}
	p.metrics.RecordOutbox(ctx, string(shared.OutboxStatusSent))
	p.logger.Debug("outbox entry relayed",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)
	return true
}

func (p *OutboxProcessor) fail(ctx context.Context, entry *shared.OutboxEntry, err error) {
	entry.MarkFailed(err.Error())
	fields := []zap.Field{
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("aggregate_type", entry.AggregateType),
		zap.String("aggregate_id", entry.AggregateID.String()),
		zap.Int("retry_count", entry.RetryCount),
		zap.Error(err),
	}
	if entry.IsDead() {
		p.logger.Warn("outbox entry moved to dead letter", fields...)
	} else {
		p.logger.Error("failed to relay outbox entry", fields...)
	}
	p.metrics.RecordOutbox(ctx, string(entry.Status))

	if updateErr := p.repo.Update(context.WithoutCancel(ctx), entry); updateErr != nil {
		p.logger.Error("failed to update outbox entry", zap.Error(updateErr))
	}
}

func (p *OutboxProcessor) unclaim(ctx context.Context, entry *shared.OutboxEntry) {
	if entry.RetryCount > 0 {
		entry.Status = shared.OutboxStatusFailed
	} else {
		entry.Status = shared.OutboxStatusPending
	}
	if err := p.repo.Update(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.Error("failed to release outbox entry", zap.Error(err))
	}
}

func (p *OutboxProcessor) releaseStaleClaims(ctx context.Context) {
	released, err := p.repo.ReleaseStaleClaims(ctx, time.Now().Add(-p.config.ClaimLease))
	if err != nil {
		p.logger.Error("failed to release stale outbox claims", zap.Error(err))
		return
	}
	if released > 0 {
		p.logger.Warn("released stale outbox claims",
			zap.Int64("count", released),
			zap.Duration("lease", p.config.ClaimLease),
		)
	}
}

// Cleanup removes relayed entries older than the retention window, archiving
// them first when an archiver is set. It returns the number deleted.
func (p *OutboxProcessor) Cleanup(ctx context.Context) int64 {
	cutoff := time.Now().Add(-p.config.CleanupRetention)

	if p.archiver == nil {
		deleted, err := p.repo.DeleteSentBefore(ctx, cutoff)
		if err != nil {
			p.logger.Error("failed to clean up outbox entries", zap.Error(err))
			return 0
		}
		p.logCleanup(deleted, cutoff)
		return deleted
	}

	var total int64
	for {
		entries, err := p.repo.FindSentBefore(ctx, cutoff, p.config.BatchSize)
		if err != nil {
			p.logger.Error("failed to find outbox entries to archive", zap.Error(err))
			break
		}
		if len(entries) == 0 {
			break
		}
		// Entries are deleted only after the archive write succeeded
		if err := p.archiver.Archive(ctx, entries); err != nil {
			p.logger.Error("failed to archive outbox entries", zap.Int("count", len(entries)), zap.Error(err))
			break
		}

		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		deleted, err := p.repo.DeleteByIDs(ctx, ids)
		if err != nil {
			p.logger.Error("failed to delete archived outbox entries", zap.Error(err))
			break
		}
		total += deleted
		if len(entries) < p.config.BatchSize {
			break
		}
	}
	p.logCleanup(total, cutoff)
	return total
}

func (p *OutboxProcessor) logCleanup(deleted int64, cutoff time.Time) {
	if deleted > 0 {
		p.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
