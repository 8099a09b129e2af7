// Package scheduler runs every periodic background job of the process on one
// owner with a single start and stop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrInvalidJob     = errors.New("invalid job")
)

// Job is a named function run every Interval. Runs of one job never overlap.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

type drainHook struct {
	name string
	run  func(ctx context.Context) error
}

// Scheduler owns the job loops. Stop cancels the loops, waits for in-flight
// runs and then executes the drain hooks in registration order.
type Scheduler struct {
	logger *logging.ChanneledLogger

	mu      sync.Mutex
	jobs    []Job
	drains  []drainHook
	cancel  context.CancelFunc
	started bool
	stopped bool

	wg sync.WaitGroup
}

// New creates an idle scheduler.
func New(logger *logging.ChanneledLogger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Register adds job. Jobs must be registered before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil || job.Interval <= 0 {
		return fmt.Errorf("%w: %q needs a name, a function and a positive interval", ErrInvalidJob, job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%w: cannot register %s", ErrAlreadyStarted, job.Name)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// OnStop registers a final drain run by Stop after every loop has exited.
func (s *Scheduler) OnStop(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drains = append(s.drains, drainHook{name: name, run: fn})
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name
	}
	return names
}

// Start launches one loop per job. The loops end when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(loopCtx, job)
	}

	s.logger.System().Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.logger.Perf().Debug("Job loop started", "job", job.Name, "interval", job.Interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Perf().Debug("Job loop stopping", "job", job.Name)
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

// runOnce executes job, isolating a panic to this tick.
func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Perf().Error("Job panicked", "job", job.Name, "panic", fmt.Sprint(r))
			return
		}
		s.logger.Perf().Debug("Job completed", "job", job.Name, "duration", time.Since(start))
	}()
	job.Run(ctx)
}

// Stop cancels every loop, waits for running jobs (bounded by ctx) and then
// runs the drain hooks. Calling Stop again is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	drains := append([]drainHook(nil), s.drains...)
	s.mu.Unlock()

	s.logger.Shutdown().Info("Stopping scheduler")
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for jobs: %w", ctx.Err()))
	}

	for _, hook := range drains {
		start := time.Now()
		if err := hook.run(ctx); err != nil {
			s.logger.Shutdown().Error("Drain failed", "hook", hook.name, "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
			continue
		}
		s.logger.Shutdown().Info("Drain completed", "hook", hook.name, "duration", time.Since(start))
	}

	return errors.Join(errs...)
}
