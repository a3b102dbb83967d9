// Package scheduler fires each source's pipeline on its cron schedule,
// serializing runs per source and reporting handler failures to a sink.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Handler runs one full pipeline tick for a source.
type Handler func(ctx context.Context) error

// ErrorSink receives handler failures. The schedule itself never stops on a
// failing source.
type ErrorSink func(source string, err error)

// Scheduler owns the cron runner and the per-source jobs.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*job
	sink    ErrorSink
	logger  *slog.Logger
	baseCtx context.Context
	stopped atomic.Bool
	// runMu is read-held for the whole of every firing; Stop takes the write
	// side to wait out in-flight runs and shut the door on late ones.
	runMu sync.RWMutex
}

// job serializes runs of one source. The mutex is per source: two sources
// may run concurrently, a source never overlaps itself.
type job struct {
	name string
	run  Handler
	mu   sync.Mutex
}

// New builds an empty scheduler. sink may be nil.
func New(sink ErrorSink) *Scheduler {
	if sink == nil {
		sink = func(string, error) {}
	}
	return &Scheduler{
		cron:    cron.New(),
		jobs:    make(map[string]*job),
		sink:    sink,
		logger:  slog.With("component", "scheduler"),
		baseCtx: context.Background(),
	}
}

// Register adds one source with its cron expressions. Must be called before
// Start.
func (s *Scheduler) Register(name string, exprs []string, run Handler) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("source %s already registered", name)
	}
	j := &job{name: name, run: run}
	s.jobs[name] = j

	for _, expr := range exprs {
		if _, err := s.cron.AddFunc(expr, func() { s.fire(j) }); err != nil {
			return fmt.Errorf("schedule %s with %q: %w", name, expr, err)
		}
	}
	s.logger.Info("Registered source", "source", name, "schedules", len(exprs))
	return nil
}

// Start begins firing. ctx is the base context handed to every handler;
// cancelling it asks in-flight pipelines to wind down.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseCtx = ctx
	s.cron.Start()
	s.logger.Info("Scheduler started", "sources", len(s.jobs))
}

// Stop declines new firings and waits for running handlers to complete.
// A Trigger racing Stop either finishes before Stop returns or declines.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	<-s.cron.Stop().Done()
	// The write lock waits for every in-flight firing; a firing that has not
	// read-locked yet will see stopped and decline.
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.logger.Info("Scheduler stopped")
}

// Trigger runs one source out of schedule, through the same mutex as a cron
// firing. It returns once the run is started (or dropped); the run itself is
// asynchronous.
func (s *Scheduler) Trigger(name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown source %s", name)
	}
	if s.stopped.Load() {
		return fmt.Errorf("scheduler is stopped")
	}
	go s.fire(j)
	return nil
}

// Sources lists the registered source names, sorted.
func (s *Scheduler) Sources() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) fire(j *job) {
	s.runMu.RLock()
	defer s.runMu.RUnlock()

	if s.stopped.Load() {
		s.logger.Info("Declining firing, scheduler stopped", "source", j.name)
		return
	}
	if !j.mu.TryLock() {
		s.logger.Warn("Dropping overlapping firing, previous run still active", "source", j.name)
		return
	}
	defer j.mu.Unlock()

	s.logger.Info("Source firing", "source", j.name)
	if err := j.run(s.baseCtx); err != nil {
		s.logger.Error("Source run failed", "source", j.name, "error", err)
		s.sink(j.name, err)
	}
}
