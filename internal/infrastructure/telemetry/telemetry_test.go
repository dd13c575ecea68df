package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/inventory/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestSetup_Disabled(t *testing.T) {
	ctx := context.Background()
	p, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: "test"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.TracesEnabled())
	assert.NotNil(t, p.Meter("test"))
	assert.False(t, p.ZapCore(zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
	assert.NoError(t, p.Shutdown(ctx))
}

func TestStartServiceSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ctx, span := telemetry.StartServiceSpan(context.Background(), "inventory", "reserve",
		"sku", "SKU-1",
		"quantity", int64(3),
		42, "ignored",
		"orphan",
	)
	assert.NotEmpty(t, telemetry.GetTraceID(ctx))
	telemetry.SetAttributes(span, "retry", 1)
	telemetry.RecordError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "inventory.reserve", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, map[string]string{"sku": "SKU-1", "quantity": "3", "retry": "1"}, attrs)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, telemetry.GetTraceID(context.Background()))
}

type fixedLowStock struct{ count int64 }

func (f fixedLowStock) CountBelowMinimum(context.Context) (int64, error) { return f.count, nil }

func TestInventoryMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	ctx := context.Background()

	m, err := telemetry.NewInventoryMetrics(mp.Meter("test"), zap.NewNop())
	require.NoError(t, err)

	m.RecordOperation(ctx, "reserve", telemetry.OutcomeApplied)
	m.RecordOperation(ctx, "reserve", telemetry.OutcomeApplied)
	m.RecordOperation(ctx, "release", telemetry.OutcomeNoop)
	m.RecordMissingSku(ctx, "OrderConfirmed")
	m.RecordReclaimed(ctx, 0)
	m.StartLowStockCollection(ctx, fixedLowStock{count: 4}, time.Hour)
	defer m.Stop()

	var rm metricdata.ResourceMetrics
	require.Eventually(t, func() bool {
		require.NoError(t, reader.Collect(ctx, &rm))
		return findMetric(rm, "inventory_items_below_minimum") != nil
	}, time.Second, 10*time.Millisecond)

	ops := findMetric(rm, "inventory_operations_total")
	require.NotNil(t, ops)
	sum, ok := ops.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, sum.DataPoints, 2)

	assert.NotNil(t, findMetric(rm, "saga_missing_sku_total"))
	assert.Nil(t, findMetric(rm, "inventory_reservations_reclaimed_total"))

	gauge := findMetric(rm, "inventory_items_below_minimum").Data.(metricdata.Gauge[int64])
	assert.Equal(t, int64(4), gauge.DataPoints[0].Value)
}

func TestInventoryMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.InventoryMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordOperation(ctx, "reserve", telemetry.OutcomeApplied)
		m.RecordConflict(ctx, "reserve")
		m.RecordAlert(ctx, "low_stock")
		m.RecordOutbox(ctx, "SENT")
		m.Stop()
	})

	_, err := telemetry.NewInventoryMetrics(nil, nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestStartProfiler_Disabled(t *testing.T) {
	p, err := telemetry.StartProfiler(telemetry.ProfilerConfig{}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, p.Stop())
}

func TestStartProfiler_RequiresAddress(t *testing.T) {
	_, err := telemetry.StartProfiler(telemetry.ProfilerConfig{Enabled: true, ApplicationName: "app"}, nil, zap.NewNop())
	assert.Error(t, err)
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}
