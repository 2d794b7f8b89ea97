// Package schedule runs wall-clock-triggered maintenance jobs.
//
// Jobs are held in a task table and evaluated once per tick against an
// injected clock, so tests drive them by calling Tick with fabricated
// times instead of sleeping. Three trigger shapes cover the pipeline's
// needs: a fixed interval, a daily hour:minute, and a weekly weekday+hour.
package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a scheduled unit of work. Errors are logged, never fatal.
type Job func(ctx context.Context) error

// Trigger decides whether a job fires at a given evaluation instant.
type Trigger interface {
	// Due reports whether the job should run now, given when it last ran.
	// A zero lastRun means the job has never run.
	Due(now, lastRun time.Time) bool
}

// Every fires when at least Interval has elapsed since the last run.
type Every struct {
	Interval time.Duration
}

func (e Every) Due(now, lastRun time.Time) bool {
	return lastRun.IsZero() || now.Sub(lastRun) >= e.Interval
}

// Daily fires once per calendar day at Hour:Minute local time.
type Daily struct {
	Hour   int
	Minute int
}

func (d Daily) Due(now, lastRun time.Time) bool {
	if now.Hour() != d.Hour || now.Minute() < d.Minute {
		return false
	}
	return lastRun.IsZero() || !sameDay(now, lastRun)
}

// Weekly fires once per week on Weekday at Hour.
type Weekly struct {
	Weekday time.Weekday
	Hour    int
}

func (w Weekly) Due(now, lastRun time.Time) bool {
	if now.Weekday() != w.Weekday || now.Hour() != w.Hour {
		return false
	}
	return lastRun.IsZero() || now.Sub(lastRun) > 24*time.Hour
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type task struct {
	name    string
	trigger Trigger
	job     Job
	lastRun time.Time
}

// Scheduler evaluates the task table once per tick.
type Scheduler struct {
	logger *zap.Logger
	tick   time.Duration
	nowFn  func() time.Time

	mu      sync.Mutex
	tasks   []*task
	started bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.nowFn = now }
}

// WithTickInterval overrides the evaluation cadence (default one minute).
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// New creates a Scheduler.
func New(logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		logger: logger,
		tick:   time.Minute,
		nowFn:  time.Now,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job to the task table. Not safe to call after Start.
func (s *Scheduler) Register(name string, trigger Trigger, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &task{name: name, trigger: trigger, job: job})
}

// Start runs the tick loop until Stop is called or ctx is done.
// Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Tick(ctx, s.nowFn())
			}
		}
	}()
}

// Tick evaluates every task against now, running those that are due.
// Exposed so tests can drive the schedule with a fake clock.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*task
	for _, t := range s.tasks {
		if t.trigger.Due(now, t.lastRun) {
			t.lastRun = now
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.run(ctx, t)
	}
}

func (s *Scheduler) run(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked",
				zap.String("job", t.name),
				zap.Any("panic", r),
			)
		}
	}()
	if err := t.job(ctx); err != nil {
		s.logger.Warn("scheduled job failed",
			zap.String("job", t.name),
			zap.Error(err),
		)
	}
}

// Stop halts the tick loop. Safe to call more than once, and safe to call
// when Start never ran.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}
