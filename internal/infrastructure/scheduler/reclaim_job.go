package scheduler

import (
	"context"
	"sync"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"go.uber.org/zap"
)

// ReclaimJobName identifies the reservation reclaim job in logs
const ReclaimJobName = "reservation-reclaim"

// ExpiredReservationSweeper releases every reservation that has expired
type ExpiredReservationSweeper interface {
	ReclaimExpired(ctx context.Context) (*inventoryapp.ReclaimStats, error)
}

// ReclaimJob runs one expired-reservation sweep per scheduler tick
type ReclaimJob struct {
	sweeper ExpiredReservationSweeper
	logger  *zap.Logger

	mu        sync.Mutex
	lastStats *inventoryapp.ReclaimStats
}

// NewReclaimJob creates a job over the expiration service
func NewReclaimJob(sweeper ExpiredReservationSweeper, logger *zap.Logger) *ReclaimJob {
	return &ReclaimJob{sweeper: sweeper, logger: logger}
}

// Name returns the job name
func (j *ReclaimJob) Name() string { return ReclaimJobName }

// Run sweeps once. Items that failed are retried on the next tick.
func (j *ReclaimJob) Run(ctx context.Context) error {
	stats, err := j.sweeper.ReclaimExpired(ctx)
	if stats != nil {
		j.mu.Lock()
		j.lastStats = stats
		j.mu.Unlock()
	}
	if err != nil {
		return err
	}
	if stats.FailedItems > 0 {
		j.logger.Warn("Some items could not be reclaimed",
			zap.Int("failed", stats.FailedItems),
			zap.Int("scanned", stats.ItemsScanned),
		)
	}
	return nil
}

// LastStats returns the stats of the latest sweep, nil before the first one
func (j *ReclaimJob) LastStats() *inventoryapp.ReclaimStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.lastStats == nil {
		return nil
	}
	stats := *j.lastStats
	return &stats
}

var _ Job = (*ReclaimJob)(nil)
