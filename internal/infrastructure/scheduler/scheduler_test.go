package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func countingJob(counter *atomic.Int32, err error) JobFunc {
	return JobFunc{JobName: "count", Fn: func(context.Context) error {
		counter.Add(1)
		return err
	}}
}

func TestNewIntervalScheduler_Validation(t *testing.T) {
	_, err := NewIntervalScheduler(Config{}, countingJob(new(atomic.Int32), nil), zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewIntervalScheduler(Config{Interval: time.Second}, nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestIntervalScheduler_RunsOnTicks(t *testing.T) {
	var runs atomic.Int32
	s, err := NewIntervalScheduler(Config{Interval: 10 * time.Millisecond, RunOnStart: true}, countingJob(&runs, nil), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	stopped := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "no runs after Stop")

	last, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, JobStatusSuccess, last.Status)
	assert.Equal(t, "count", last.Job)
}

func TestIntervalScheduler_TriggerRecordsFailure(t *testing.T) {
	var runs atomic.Int32
	s, err := NewIntervalScheduler(Config{Interval: time.Hour}, countingJob(&runs, errors.New("db down")), zap.NewNop())
	require.NoError(t, err)

	_, err = s.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	run, err := s.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, JobStatusFailed, run.Status)
	assert.Equal(t, "db down", run.Error)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, int32(1), runs.Load())
}

func TestIntervalScheduler_NoOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	job := JobFunc{JobName: "slow", Fn: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}
	s, err := NewIntervalScheduler(Config{Interval: time.Hour}, job, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	go func() { _, _ = s.Trigger(context.Background()) }()
	<-started

	_, err = s.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrJobInProgress)

	last, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, JobStatusRunning, last.Status)

	close(release)
	require.NoError(t, s.Stop(context.Background()))
}

func TestIntervalScheduler_RecoversPanics(t *testing.T) {
	job := JobFunc{JobName: "boom", Fn: func(context.Context) error { panic("nil map") }}
	s, err := NewIntervalScheduler(Config{Interval: time.Hour}, job, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	run, err := s.Trigger(context.Background())
	require.Error(t, err)
	assert.Contains(t, run.Error, "nil map")
}

func TestIntervalScheduler_TimeoutCancelsRun(t *testing.T) {
	job := JobFunc{JobName: "stuck", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	s, err := NewIntervalScheduler(Config{Interval: time.Hour, Timeout: 20 * time.Millisecond}, job, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	_, err = s.Trigger(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type stubSweeper struct {
	stats *inventoryapp.ReclaimStats
	err   error
}

func (s stubSweeper) ReclaimExpired(context.Context) (*inventoryapp.ReclaimStats, error) {
	return s.stats, s.err
}

func TestReclaimJob(t *testing.T) {
	job := NewReclaimJob(stubSweeper{stats: &inventoryapp.ReclaimStats{ItemsScanned: 3, ReservationsReleased: 4, FailedItems: 1}}, zap.NewNop())
	assert.Equal(t, ReclaimJobName, job.Name())
	assert.Nil(t, job.LastStats())

	require.NoError(t, job.Run(context.Background()))
	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.ReservationsReleased)

	failing := NewReclaimJob(stubSweeper{err: errors.New("query failed")}, zap.NewNop())
	assert.Error(t, failing.Run(context.Background()))
	assert.Nil(t, failing.LastStats())
}
