// Package scheduler runs background jobs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the outcome of one run
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is a unit of periodic work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Name returns the job name
func (j JobFunc) Name() string { return j.JobName }

// Run calls the function
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// Run records one execution of a job
type Run struct {
	ID          uuid.UUID
	Job         string
	Status      JobStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Duration returns how long a finished run took
func (r Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Config holds interval scheduler configuration
type Config struct {
	Interval time.Duration
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
	// RunOnStart runs the job once immediately after Start
	RunOnStart bool
}

// IntervalScheduler runs one job every Interval. A tick that arrives while
// the previous run is still going is skipped, so runs never overlap.
type IntervalScheduler struct {
	config Config
	job    Job
	logger *zap.Logger
	now    func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	busy      bool
	lastRun   *Run
}

// NewIntervalScheduler creates a scheduler for job
func NewIntervalScheduler(config Config, job Job, logger *zap.Logger) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, config.Interval)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job is required", ErrInvalidConfig)
	}
	if config.Timeout <= 0 {
		config.Timeout = config.Interval
	}
	return &IntervalScheduler{
		config: config,
		job:    job,
		logger: logger.With(zap.String("job", job.Name())),
		now:    time.Now,
	}, nil
}

// Start starts the ticker loop
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.isRunning = true
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("timeout", s.config.Timeout),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// Trigger runs the job now in the caller's goroutine and returns its record
func (s *IntervalScheduler) Trigger(ctx context.Context) (Run, error) {
	return s.execute(ctx)
}

// LastRun returns the most recent run, if any
func (s *IntervalScheduler) LastRun() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return Run{}, false
	}
	return *s.lastRun, true
}

func (s *IntervalScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *IntervalScheduler) tick(ctx context.Context) {
	if _, err := s.execute(ctx); errors.Is(err, ErrJobInProgress) {
		s.logger.Debug("Skipping tick, previous run still in progress")
	}
}

// execute runs the job unless the scheduler is stopped or a run is in progress
func (s *IntervalScheduler) execute(ctx context.Context) (Run, error) {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return Run{}, ErrSchedulerNotRunning
	}
	if s.busy {
		s.mu.Unlock()
		return Run{}, ErrJobInProgress
	}
	s.busy = true
	run := &Run{ID: uuid.New(), Job: s.job.Name(), Status: JobStatusRunning, StartedAt: s.now()}
	s.lastRun = run
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	err := s.safeRun(runCtx)

	s.mu.Lock()
	completed := s.now()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = JobStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = JobStatusSuccess
	}
	s.busy = false
	result := *run
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled job failed",
			zap.String("run_id", result.ID.String()),
			zap.Duration("duration", result.Duration()),
			zap.Error(err),
		)
		return result, err
	}
	s.logger.Debug("Scheduled job finished",
		zap.String("run_id", result.ID.String()),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

func (s *IntervalScheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.job.Run(ctx)
}
