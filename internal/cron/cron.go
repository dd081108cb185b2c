// Package cron runs periodic housekeeping jobs such as history retention
// and the night summary.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as "@daily" or "@every 1h".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a named function run on a schedule.
// Non-overlap: unless AllowOverlap is set, a tick that finds the previous
// run still active is skipped.
type Job struct {
	Name         string
	Schedule     string
	Run          func(ctx context.Context)
	AllowOverlap bool

	running atomic.Bool
	runs    atomic.Int64
	entry   cron.EntryID
}

// Validate checks the name, the function and the schedule expression.
func (j *Job) Validate() error {
	if j.Name == "" {
		return errors.New("cron job requires a name")
	}
	if j.Schedule == "" {
		return errors.New("cron job requires a schedule")
	}
	if j.Run == nil {
		return fmt.Errorf("cron job %s has no function", j.Name)
	}
	if _, err := parser.Parse(j.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", j.Schedule, err)
	}
	return nil
}

// Runs reports how many times the job has started.
func (j *Job) Runs() int64 { return j.runs.Load() }

// Scheduler owns a robfig cron instance. Use Start to launch it and Stop
// to cancel running jobs and wait for them.
type Scheduler struct {
	mu      sync.Mutex
	c       *cron.Cron
	jobs    map[string]*Job
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	log     *slog.Logger
}

// NewScheduler evaluates schedules in loc; nil means the local zone.
func NewScheduler(loc *time.Location, log *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c:      cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		jobs:   map[string]*Job{},
		ctx:    ctx,
		cancel: cancel,
		log:    log.With("component", "cron"),
	}
}

func (s *Scheduler) Add(job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("cron job %s already exists", job.Name)
	}
	id, err := s.c.AddFunc(job.Schedule, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("failed to schedule cron job %s: %w", job.Name, err)
	}
	job.entry = id
	s.jobs[job.Name] = job
	return nil
}

// Start launches the cron loop. Jobs may still be added afterwards.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true
	s.c.Start()
	for name, j := range s.jobs {
		s.log.Info("cron job scheduled", "name", name, "schedule", j.Schedule, "next", s.c.Entry(j.entry).Next)
	}
	return nil
}

// Stop cancels the context passed to running jobs and waits until they
// return or ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.cancel()
		return nil
	}
	s.started = false
	s.mu.Unlock()
	s.cancel()
	select {
	case <-s.c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow triggers a job outside its schedule. It reports false when the
// job is unknown or, for a non-overlapping job, already running.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.run(j)
}

// Next returns the next scheduled run of a job, or zero before Start.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}
	return s.c.Entry(j.entry).Next
}

func (s *Scheduler) run(j *Job) (ran bool) {
	if s.ctx.Err() != nil {
		return false
	}
	if !j.AllowOverlap && !j.running.CompareAndSwap(false, true) {
		s.log.Debug("cron job still running, tick skipped", "name", j.Name)
		return false
	}
	defer func() {
		if !j.AllowOverlap {
			j.running.Store(false)
		}
		if r := recover(); r != nil {
			s.log.Error("cron job panicked", "name", j.Name, "panic", r)
		}
	}()
	j.runs.Add(1)
	ran = true
	j.Run(s.ctx)
	return ran
}
