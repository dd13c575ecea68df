package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when a metrics component is built without a meter
var ErrMeterNil = errors.New("telemetry: meter is nil")

// Metric attribute keys
var (
	AttrOperation = attribute.Key("operation")
	AttrOutcome   = attribute.Key("outcome")
	AttrAlertType = attribute.Key("alert_type")
	AttrEventType = attribute.Key("event_type")
	AttrStatus    = attribute.Key("status")
)

// Operation outcomes
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
)

// Counter wraps an Int64Counter
type Counter struct {
	counter metric.Int64Counter
}

// NewCounter creates a new Counter metric
func NewCounter(meter metric.Meter, name, description, unit string) (*Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return &Counter{counter: c}, nil
}

// Add increments the counter by value
func (c *Counter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Inc increments the counter by 1
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Gauge wraps an Int64Gauge
type Gauge struct {
	gauge metric.Int64Gauge
}

// NewGauge creates a new Gauge metric
func NewGauge(meter metric.Meter, name, description, unit string) (*Gauge, error) {
	g, err := meter.Int64Gauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge %s: %w", name, err)
	}
	return &Gauge{gauge: g}, nil
}

// Record sets the gauge to value
func (g *Gauge) Record(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	g.gauge.Record(ctx, value, metric.WithAttributes(attrs...))
}

// LowStockCounter reports how many items are at or below their minimum level
type LowStockCounter interface {
	CountBelowMinimum(ctx context.Context) (int64, error)
}

// InventoryMetrics records inventory and saga activity. A nil
// *InventoryMetrics is valid and records nothing.
type InventoryMetrics struct {
	logger *zap.Logger

	operations   *Counter
	conflicts    *Counter
	reclaimed    *Counter
	alerts       *Counter
	missingSku   *Counter
	outbox       *Counter
	belowMinimum *Gauge

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewInventoryMetrics creates the inventory instruments on meter
func NewInventoryMetrics(meter metric.Meter, logger *zap.Logger) (*InventoryMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &InventoryMetrics{logger: logger, stopCh: make(chan struct{})}
	var err error
	if m.operations, err = NewCounter(meter, "inventory_operations_total",
		"Inventory operations by operation and outcome", "{operations}"); err != nil {
		return nil, err
	}
	if m.conflicts, err = NewCounter(meter, "inventory_concurrency_conflicts_total",
		"Optimistic concurrency conflicts retried or surfaced", "{conflicts}"); err != nil {
		return nil, err
	}
	if m.reclaimed, err = NewCounter(meter, "inventory_reservations_reclaimed_total",
		"Expired reservations returned to available stock", "{reservations}"); err != nil {
		return nil, err
	}
	if m.alerts, err = NewCounter(meter, "inventory_stock_alerts_total",
		"Low stock and out of stock alerts raised", "{alerts}"); err != nil {
		return nil, err
	}
	if m.missingSku, err = NewCounter(meter, "saga_missing_sku_total",
		"Order lines skipped because no inventory item exists for the SKU", "{lines}"); err != nil {
		return nil, err
	}
	if m.outbox, err = NewCounter(meter, "outbox_entries_total",
		"Outbox entries relayed by final status", "{entries}"); err != nil {
		return nil, err
	}
	if m.belowMinimum, err = NewGauge(meter, "inventory_items_below_minimum",
		"Inventory items at or below their minimum stock level", "{items}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordOperation counts one inventory operation
func (m *InventoryMetrics) RecordOperation(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.Inc(ctx, AttrOperation.String(operation), AttrOutcome.String(outcome))
}

// RecordConflict counts one optimistic concurrency conflict
func (m *InventoryMetrics) RecordConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.conflicts.Inc(ctx, AttrOperation.String(operation))
}

// RecordReclaimed counts reclaimed reservations
func (m *InventoryMetrics) RecordReclaimed(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reclaimed.Add(ctx, int64(count))
}

// RecordAlert counts one stock alert
func (m *InventoryMetrics) RecordAlert(ctx context.Context, alertType string) {
	if m == nil {
		return
	}
	m.alerts.Inc(ctx, AttrAlertType.String(alertType))
}

// RecordMissingSku counts an order line skipped by the saga
func (m *InventoryMetrics) RecordMissingSku(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.missingSku.Inc(ctx, AttrEventType.String(eventType))
}

// RecordOutbox counts an outbox entry reaching status
func (m *InventoryMetrics) RecordOutbox(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.outbox.Inc(ctx, AttrStatus.String(status))
}

// StartLowStockCollection samples counter every interval until Stop or ctx
// is done.
func (m *InventoryMetrics) StartLowStockCollection(ctx context.Context, counter LowStockCounter, interval time.Duration) {
	if m == nil || counter == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.collectLowStock(ctx, counter)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.collectLowStock(ctx, counter)
			}
		}
	}()
}

func (m *InventoryMetrics) collectLowStock(ctx context.Context, counter LowStockCounter) {
	count, err := counter.CountBelowMinimum(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect low stock count", zap.Error(err))
		return
	}
	m.belowMinimum.Record(ctx, count)
}

// Stop ends periodic collection; it is safe to call more than once
func (m *InventoryMetrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
}
