// Package scheduler runs background jobs on cron schedules. Jobs that
// are still running when their next tick arrives are skipped.
package scheduler

import (
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of scheduled work
type Job interface {
	Run() error
	Name() string
}

// Scheduler wraps a cron runner with per-job overlap protection,
// panic recovery, and logging.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		log:     log.With().Str("component", "scheduler").Logger(),
		running: make(map[string]bool),
	}
}

// Add schedules a job. The spec uses standard cron syntax, including
// the @every form for interval jobs.
func (s *Scheduler) Add(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runJob(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("Job scheduled")
	return nil
}

// Start begins running scheduled jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// RunNow executes a job immediately, outside its schedule
func (s *Scheduler) RunNow(job Job) {
	s.runJob(job)
}

func (s *Scheduler) runJob(job Job) {
	name := job.Name()

	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.log.Warn().Str("job", name).Msg("Previous run still in progress, skipping")
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", name).Interface("panic", r).Msg("Job panicked")
		}
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	s.log.Debug().Str("job", name).Msg("Job starting")
	if err := job.Run(); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Job failed")
		return
	}
	s.log.Debug().Str("job", name).Msg("Job finished")
}
