// Package trigger runs the periodic jobs that drive the engine: plan walks,
// generation and cast scans, feed refreshes and agent maintenance. It uses
// robfig/cron/v3 for scheduling; every job run is isolated with panic
// recovery so one misbehaving job never takes the scheduler down.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mimiza/smm/internal/logger"
)

// Job is one named periodic task driven by a cron expression.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler manages the registered jobs and their cron entries.
type Scheduler struct {
	cron   *cron.Cron
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	entries map[string]cron.EntryID
}

// NewScheduler creates a scheduler. Jobs are registered with Add before
// Start is called.
func NewScheduler(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{
		cron:    cron.New(),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a job. An empty spec disables the job without error;
// re-adding a name replaces the previous entry.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.Name == "" {
		return errors.New("trigger: job name is empty")
	}
	if job.Run == nil {
		return fmt.Errorf("trigger: job %s has no run function", job.Name)
	}
	if job.Spec == "" {
		s.log.Info("trigger disabled", logger.Field{Key: "job", Value: job.Name})
		return nil
	}

	if prev, ok := s.entries[job.Name]; ok {
		s.cron.Remove(prev)
	}

	entryID, err := s.cron.AddFunc(job.Spec, func() {
		s.runJob(job)
	})
	if err != nil {
		return fmt.Errorf("trigger: invalid schedule %q for %s: %w", job.Spec, job.Name, err)
	}
	s.entries[job.Name] = entryID

	s.log.Info("trigger registered",
		logger.Field{Key: "job", Value: job.Name},
		logger.Field{Key: "schedule", Value: job.Spec},
	)
	return nil
}

// Start starts the scheduler and returns immediately. The scheduler stops
// when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("trigger: scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()
	s.log.Info("trigger scheduler started", logger.Field{Key: "jobs", Value: len(s.entries)})

	go func() {
		<-s.ctx.Done()
		s.cron.Stop()
		s.log.Info("trigger scheduler stopped")
	}()

	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return errors.New("trigger: scheduler not started")
	}
	s.cancel()
	s.started = false
	return nil
}

// Jobs returns the names of the active cron entries, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// runJob executes one job run with panic recovery and duration logging.
func (s *Scheduler) runJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("trigger job panicked", fmt.Errorf("panic: %v", r),
				logger.Field{Key: "job", Value: job.Name})
		}
	}()

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error("trigger job failed", err,
			logger.Field{Key: "job", Value: job.Name},
			logger.Field{Key: "duration", Value: time.Since(started).String()},
		)
		return
	}

	s.log.Debug("trigger job finished",
		logger.Field{Key: "job", Value: job.Name},
		logger.Field{Key: "duration", Value: time.Since(started).String()},
	)
}
