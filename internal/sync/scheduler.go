package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs a named job on a fixed interval, with an immediate first
// run at startup. Overlapping runs are suppressed: if a tick fires while
// the previous run is still going, the tick is dropped.
type Scheduler struct {
	name     string
	interval time.Duration
	job      func(ctx context.Context)
	log      *zap.SugaredLogger

	cron    *cron.Cron
	mu      gosync.Mutex
	started bool
	running bool
}

// NewScheduler creates a scheduler for the given job.
func NewScheduler(name string, interval time.Duration, job func(ctx context.Context), log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		log:      log,
	}
}

// Start begins the schedule and fires the first run immediately. Calling
// Start on a started scheduler is a logged no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.log.Warnw("scheduler already started", "job", s.name)
		return nil
	}
	s.started = true
	s.cron = cron.New()
	s.mu.Unlock()

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", s.name, err)
	}
	s.cron.Start()
	s.log.Infow("scheduler started", "job", s.name, "interval", s.interval)

	go s.run()
	return nil
}

// Stop halts the schedule. An in-flight run finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.cron.Stop()
	s.log.Infow("scheduler stopped", "job", s.name)
}

// TriggerNow runs the job immediately, outside the schedule. Returns false
// if a run is already in progress.
func (s *Scheduler) TriggerNow() bool {
	return s.tryRun()
}

func (s *Scheduler) run() {
	if !s.tryRun() {
		s.log.Warnw("previous run still in progress, skipping tick", "job", s.name)
	}
}

func (s *Scheduler) tryRun() bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	s.job(ctx)
	return true
}
