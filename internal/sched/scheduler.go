// Package sched implements the cron-style job scheduler: named jobs
// with five-field schedules, evaluated against an externally driven
// tick (normally once per minute).
//
// Jobs within one tick run sequentially in registration order. A
// failing or panicking job is caught, logged, and counted; it never
// prevents the other jobs of the same tick from running.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarrylane/praxis/internal/metrics"
)

// JobFunc is a job body. The config map carries the job's optional
// configuration from the job document (e.g. days_before_expiry).
type JobFunc func(ctx context.Context, config map[string]any) error

// JobDefinition declares one schedulable job. Immutable after
// registration.
type JobDefinition struct {
	Name        string
	Schedule    string
	Description string
	Config      map[string]any
	Handler     JobFunc
}

// JobResult reports one job execution.
type JobResult struct {
	Job      string
	Started  time.Time
	Duration time.Duration
	Err      error
}

type registeredJob struct {
	JobDefinition
	schedule Schedule
}

// Scheduler holds the registered jobs and evaluates their schedules on
// each tick. Not safe for concurrent registration; register at
// startup, tick from a single goroutine.
type Scheduler struct {
	jobs  []registeredJob
	byName map[string]int

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNow overrides the wall clock used for result timestamps (tests).
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = c }
}

// NewScheduler creates an empty scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		byName: make(map[string]int),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. Names are unique; the schedule must parse.
func (s *Scheduler) Register(def JobDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if _, dup := s.byName[def.Name]; dup {
		return fmt.Errorf("job %q already registered", def.Name)
	}
	if def.Handler == nil {
		return fmt.Errorf("job %q: handler is required", def.Name)
	}
	schedule, err := ParseSchedule(def.Schedule)
	if err != nil {
		return fmt.Errorf("job %q: %w", def.Name, err)
	}

	s.byName[def.Name] = len(s.jobs)
	s.jobs = append(s.jobs, registeredJob{JobDefinition: def, schedule: schedule})
	return nil
}

// Jobs returns the registered definitions in registration order.
func (s *Scheduler) Jobs() []JobDefinition {
	out := make([]JobDefinition, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.JobDefinition
	}
	return out
}

// RunAllDueJobs is the normal tick entry point: every job whose
// schedule matches now runs, sequentially, in registration order.
func (s *Scheduler) RunAllDueJobs(ctx context.Context, now time.Time) []JobResult {
	var results []JobResult
	for _, job := range s.jobs {
		if !job.schedule.Matches(now) {
			continue
		}
		results = append(results, s.run(ctx, job))
	}
	return results
}

// RunJobByName executes one job immediately, bypassing its schedule.
// Used for out-of-band operational recovery.
func (s *Scheduler) RunJobByName(ctx context.Context, name string) (JobResult, error) {
	i, ok := s.byName[name]
	if !ok {
		return JobResult{}, fmt.Errorf("job %q is not registered", name)
	}
	return s.run(ctx, s.jobs[i]), nil
}

func (s *Scheduler) run(ctx context.Context, job registeredJob) JobResult {
	started := s.now()
	s.logger.Info("job started", "job", job.Name)

	err := s.invoke(ctx, job)

	result := JobResult{
		Job:      job.Name,
		Started:  started,
		Duration: s.now().Sub(started),
		Err:      err,
	}
	if err != nil {
		s.logger.Error("job failed",
			"job", job.Name,
			"duration", result.Duration,
			"error", err,
		)
		s.metrics.RecordJobRun(job.Name, "failed")
	} else {
		s.logger.Info("job completed",
			"job", job.Name,
			"duration", result.Duration,
		)
		s.metrics.RecordJobRun(job.Name, "completed")
	}
	return result
}

// invoke runs the handler with panic containment. A panicking job must
// not take down the tick loop.
func (s *Scheduler) invoke(ctx context.Context, job registeredJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Handler(ctx, job.Config)
}
