// Package scheduler drives the collector's periodic jobs. Each job runs on
// its own ticker in its own goroutine; ticks that arrive while the previous
// run is still in progress are simply the next run, never a concurrent one.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock abstracts wall time so job scheduling can be tested without
// sleeping.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the minimal surface of time.Ticker the scheduler needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct{ ticker *time.Ticker }

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// Job is one named periodic task. Fn receives the tick time that triggered
// the run; snapshot observation times derive from it so every video polled
// in one run shares a timestamp.
type Job struct {
	Name     string
	Interval time.Duration
	// RunImmediately runs the job once at startup instead of waiting a
	// full interval for the first tick.
	RunImmediately bool
	Fn             func(ctx context.Context, tick time.Time)
}

// Scheduler runs registered jobs until its context is cancelled.
type Scheduler struct {
	clock Clock
	log   *zap.Logger
	jobs  []Job
}

// New builds a scheduler on the given clock.
func New(clock Clock, log *zap.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{clock: clock, log: log}
}

// Add registers a job. Must be called before Run.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Run starts every registered job and blocks until ctx is cancelled and all
// in-flight runs have returned. A run in progress at shutdown is allowed to
// finish; jobs observe ctx themselves to wind down early.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}

	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	log := s.log.With(zap.String("job", job.Name), zap.Duration("interval", job.Interval))

	if job.RunImmediately {
		s.runOnce(ctx, job, s.clock.Now(), log)
	}

	ticker := s.clock.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Job loop stopped")
			return
		case tick := <-ticker.C():
			s.runOnce(ctx, job, tick, log)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job, tick time.Time, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}

	log.Info("Job run starting", zap.Time("tick", tick))
	start := s.clock.Now()
	job.Fn(ctx, tick)
	log.Info("Job run finished", zap.Duration("duration", s.clock.Now().Sub(start)))
}
