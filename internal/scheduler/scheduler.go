// Package scheduler runs named jobs on cron specs with a per-run timeout.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

func NewJob(name, spec string, fn JobFunc) *Job {
	if name == "" {
		name = InferNameFromFunc(fn)
	}
	return &Job{Name: name, Spec: spec, fn: fn}
}

// Execute runs the job unless a previous run is still going, in which case it returns nil.
func (j *Job) Execute(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		log.Warn().Str("job", j.Name).Msg("previous run still in progress, skipping")
		return nil
	}
	defer j.running.Store(false)
	return j.fn(ctx)
}

func (j *Job) GetName() string {
	return j.Name
}

// Scheduler wraps a seconds-resolution cron with panic recovery.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	runTimeout time.Duration
	jobs       []*Job
}

func New(ctx context.Context, runTimeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	logger := zerologCronLogger{}
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)), cron.WithLogger(logger)),
		ctx:        ctx,
		cancel:     cancel,
		runTimeout: runTimeout,
	}
}

// Add registers job on its spec. Every run gets its own context bounded by the run timeout.
func (s *Scheduler) Add(job *Job) error {
	_, err := s.cron.AddFunc(job.Spec, func() {
		s.run(job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	s.jobs = append(s.jobs, job)
	log.Info().Str("job", job.Name).Str("spec", job.Spec).Msg("job scheduled")
	return nil
}

// RunNow runs job immediately on the caller's goroutine, under the same guard and timeout.
func (s *Scheduler) RunNow(job *Job) {
	s.run(job)
}

func (s *Scheduler) run(job *Job) {
	ctx := s.ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	started := time.Now()
	if err := job.Execute(ctx); err != nil {
		log.Error().Err(err).Str("job", job.Name).Dur("elapsed", time.Since(started)).Msg("job failed")
		return
	}
	log.Debug().Str("job", job.Name).Dur("elapsed", time.Since(started)).Msg("job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// zerologCronLogger adapts cron.Logger to the global zerolog logger.
type zerologCronLogger struct{}

func (zerologCronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (zerologCronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
