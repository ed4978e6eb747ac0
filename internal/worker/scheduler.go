package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"spendwatch/internal/log"
	"spendwatch/internal/metrics"
)

// ErrBusy is returned by Trigger when the job is already executing.
var ErrBusy = errors.New("job is already running")

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// SchedulerConfig holds configuration for a Scheduler
type SchedulerConfig struct {
	// Name labels logs and metrics (e.g. "analysis", "reaper")
	Name string

	// Interval is how often the job runs (default: 1h)
	Interval time.Duration

	// RunOnStart executes the job once immediately after Start (default: false)
	RunOnStart bool

	// Timeout bounds a single execution; zero means no limit
	Timeout time.Duration
}

// Scheduler runs a Job on a fixed interval. Executions never overlap: a
// tick that fires while the job is still running is skipped.
type Scheduler struct {
	job    Job
	config SchedulerConfig
	logger *slog.Logger

	busy atomic.Bool

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(job Job, config SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduler %q: job is required", config.Name)
	}
	if config.Name == "" {
		config.Name = "job"
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		job:    job,
		config: config,
		logger: logger.With(log.FieldComponent, log.ComponentScheduler, "job", config.Name),
	}, nil
}

// Start begins the scheduling loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler %q is already running", s.config.Name)
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Scheduler started",
		"interval", s.config.Interval,
		"run_on_start", s.config.RunOnStart)
	return nil
}

// Stop signals the loop to exit and waits for the current execution to
// finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Wait blocks until the loop exits, either through Stop or because the
// context passed to Start was cancelled.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	doneCh := s.doneCh
	s.mu.Unlock()
	if doneCh != nil {
		<-doneCh
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger executes the job once outside the ticker. It returns ErrBusy
// without running anything when an execution is in progress.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		metrics.SchedulerRunsTotal.WithLabelValues(s.config.Name, metrics.OutcomeSkipped).Inc()
		return ErrBusy
	}
	defer s.busy.Store(false)

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	started := time.Now()
	err := s.job(ctx)
	elapsed := time.Since(started)

	if err != nil {
		metrics.SchedulerRunsTotal.WithLabelValues(s.config.Name, metrics.OutcomeFailed).Inc()
		s.logger.ErrorContext(ctx, "Scheduled job failed",
			log.FieldError, err,
			log.FieldDuration, elapsed.Milliseconds())
		return err
	}
	metrics.SchedulerRunsTotal.WithLabelValues(s.config.Name, metrics.OutcomeCompleted).Inc()
	s.logger.DebugContext(ctx, "Scheduled job finished", log.FieldDuration, elapsed.Milliseconds())
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context) {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.Trigger(ctx); errors.Is(err, ErrBusy) {
		s.logger.WarnContext(ctx, "Previous execution still running, skipping tick")
	}
}
